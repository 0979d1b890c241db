package parse

import (
	"regexp"
	"strings"
)

var listItemPattern = regexp.MustCompile(`^\d+\.(\s|$)`)

// emphasisChars are the markup characters models wrap headers and names in.
const emphasisChars = "#*_`>:~-= \t"

// Block is a contiguous span of a model answer introduced by one header line.
type Block struct {
	Header string
	Lines  []string
}

// Segment splits a raw model answer into blocks, one per header line, in order
// of appearance. Lines before the first header carry no category and are dropped.
func Segment(raw string) []Block {
	var blocks []Block
	for _, line := range splitLines(raw) {
		if header, ok := headerText(line); ok {
			blocks = append(blocks, Block{Header: header})
			continue
		}
		if len(blocks) == 0 {
			continue
		}
		last := &blocks[len(blocks)-1]
		last.Lines = append(last.Lines, line)
	}
	return blocks
}

func splitLines(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	return strings.Split(raw, "\n")
}

func headerText(line string) (string, bool) {
	stripped := stripEmphasis(line)
	if stripped == "" || isListItem(stripped) {
		return "", false
	}
	return stripped, true
}

func stripEmphasis(value string) string {
	return strings.Trim(strings.TrimSpace(value), emphasisChars)
}

func isListItem(line string) bool {
	return listItemPattern.MatchString(line)
}
