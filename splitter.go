package pigeon

import "strings"

// SplitMessage splits text into chunks of at most limit runes for delivery
// within the transport's payload limit. Chunk boundaries prefer, in order, a
// paragraph break, a line break, then a space; a candidate is only taken
// when it lies past half the limit, otherwise the text is cut hard at
// exactly the limit. Leading whitespace of every chunk after the first is
// discarded, which is the only place the split is lossy.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		return []string{text}
	}

	var chunks []string
	remainder := []rune(text)
	for len(remainder) > limit {
		window := string(remainder[:limit])
		cut := -1
		for _, sep := range []string{"\n\n", "\n", " "} {
			if idx := strings.LastIndex(window, sep); idx > 0 {
				at := len([]rune(window[:idx]))
				if at > limit/2 {
					cut = at
					break
				}
			}
		}
		if cut < 0 {
			// Hard cut always advances by the full limit, so the loop
			// makes forward progress on any input.
			cut = limit
		}
		chunks = append(chunks, string(remainder[:cut]))
		remainder = trimLeadingSpace(remainder[cut:])
	}
	if len(remainder) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(remainder))
	}
	return chunks
}

func trimLeadingSpace(r []rune) []rune {
	i := 0
	for i < len(r) && (r[i] == ' ' || r[i] == '\t' || r[i] == '\n' || r[i] == '\r') {
		i++
	}
	return r[i:]
}
