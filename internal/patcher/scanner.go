package patcher

// Marker is the signature chromedriver embeds in the variable names it injects
// into pages ($cdc_...). Detection scripts look for it on window and document.
const Marker = "cdc_"

// Scan returns every offset at which Marker starts, in ascending order.
// Every window from 0 to len(buf)-len(Marker) is checked, so overlapping
// occurrences are all reported.
func Scan(buf []byte) []int {
	var offsets []int
	for i := 0; i+len(Marker) <= len(buf); i++ {
		if string(buf[i:i+len(Marker)]) == Marker {
			offsets = append(offsets, i)
		}
	}
	return offsets
}
