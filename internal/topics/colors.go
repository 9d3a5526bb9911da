package topics

// Color palettes per hierarchy level. Main topics get saturated colors, sub
// and micro topics get progressively lighter shades of the same hues so the
// dashboard reads as a family.
var levelPalettes = [3][8]string{
	{"#10B981", "#3B82F6", "#8B5CF6", "#F59E0B", "#EF4444", "#06B6D4", "#84CC16", "#EC4899"},
	{"#6EE7B7", "#93C5FD", "#C4B5FD", "#FCD34D", "#FCA5A5", "#67E8F9", "#BEF264", "#F9A8D4"},
	{"#A7F3D0", "#DBEAFE", "#E0E7FF", "#FEF3C7", "#FEE2E2", "#CFFAFE", "#ECFCCB", "#FCE7F3"},
}

// colorForLevel cycles through the level's palette based on how many topics
// already exist at that level
func colorForLevel(level, existing int) string {
	if level < 0 || level > 2 {
		level = 2
	}
	palette := levelPalettes[level]
	return palette[existing%len(palette)]
}
