package parse

import "github.com/sirupsen/logrus"

// Section is a classified block together with the items extracted from it.
type Section struct {
	Category Category
	Header   string
	Items    []Item
}

// Options tunes Parse.
type Options struct {
	// Fallback labels the items of an answer that has no header line at all.
	// When empty such answers yield no sections.
	Fallback Category
}

// Parse segments, classifies and extracts a raw model answer. Blocks with an
// unrecognized header or without a single parseable item are dropped; blocks
// that classify to the same category stay separate.
func Parse(raw string, opts Options) []Section {
	blocks := Segment(raw)
	if len(blocks) == 0 {
		return unlabeledSection(raw, opts.Fallback)
	}

	sections := make([]Section, 0, len(blocks))
	for _, block := range blocks {
		category, ok := Classify(block.Header)
		if !ok {
			logrus.WithField("header", block.Header).Debug("dropping block with unrecognized header")
			continue
		}
		items := Extract(block.Lines)
		if len(items) == 0 {
			logrus.WithFields(logrus.Fields{
				"header":   block.Header,
				"category": category,
			}).Debug("dropping block without parseable items")
			continue
		}
		sections = append(sections, Section{
			Category: category,
			Header:   block.Header,
			Items:    items,
		})
	}
	return sections
}

func unlabeledSection(raw string, fallback Category) []Section {
	if !fallback.Valid() {
		return nil
	}
	items := Unlabeled(raw)
	if len(items) == 0 {
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"category": fallback,
		"items":    len(items),
	}).Info("answer has no headers; labelling every item with the requested category")
	return []Section{{Category: fallback, Items: items}}
}
