// Package e2e provides end-to-end tests over the full ingest and query path.
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CorpusDocument is a document entry in the test corpus.
type CorpusDocument struct {
	Filename string
	Content  string
}

// QueryTestCase defines a question and the document that must appear as the
// top source. The question is the normalized document text itself, which the
// deterministic mock embedder maps to the same vector as the stored chunk.
type QueryTestCase struct {
	Question         string
	ExpectedFilename string
	Description      string
}

// Corpus holds documents and query test cases.
type Corpus struct {
	Documents []CorpusDocument
	TestCases []QueryTestCase
}

// BuildCorpus returns a corpus of climate policy documents, each short enough
// to produce a single chunk, with one query test case per document.
func BuildCorpus() *Corpus {
	topics := []struct {
		name    string
		content string
	}{
		{"paris_agreement.txt", "The Paris Agreement aims to hold warming well below 2 degrees Celsius and pursue efforts to limit it to 1.5 degrees."},
		{"carbon_pricing.txt", "Carbon pricing instruments include carbon taxes and emissions trading systems that put a cost on greenhouse gas emissions."},
		{"ndc_overview.md", "Nationally determined contributions outline each country's emission reduction targets under the Paris Agreement framework."},
		{"adaptation_finance.txt", "Adaptation finance supports developing countries in building resilience to sea level rise droughts and extreme weather."},
		{"renewable_targets.md", "Renewable energy targets commit countries to scaling solar wind and hydropower capacity over the coming decades."},
		{"methane_pledge.txt", "The global methane pledge commits signatories to cut methane emissions thirty percent by 2030 from 2020 levels."},
		{"deforestation.txt", "Deforestation accounts for a significant share of global emissions and forest protection is central to mitigation policy."},
		{"just_transition.md", "A just transition ensures workers and communities dependent on fossil fuels are supported as economies decarbonize."},
		{"loss_and_damage.txt", "The loss and damage fund compensates vulnerable nations for climate impacts that exceed their capacity to adapt."},
		{"ipcc_findings.txt", "The IPCC sixth assessment report finds that human influence has unequivocally warmed the atmosphere ocean and land."},
		{"ev_mandates.md", "Electric vehicle mandates phase out internal combustion engine sales to cut transport sector emissions."},
		{"building_codes.txt", "Energy efficiency building codes reduce heating and cooling demand in new residential and commercial construction."},
	}

	corpus := &Corpus{}
	for i, t := range topics {
		corpus.Documents = append(corpus.Documents, CorpusDocument{
			Filename: t.name,
			Content:  t.content,
		})
		corpus.TestCases = append(corpus.TestCases, QueryTestCase{
			Question:         normalizeText(t.content),
			ExpectedFilename: t.name,
			Description:      fmt.Sprintf("doc %02d %s", i+1, t.name),
		})
	}
	return corpus
}

// WriteFiles writes every corpus document into dir and returns the directory.
func (c *Corpus) WriteFiles(dir string) error {
	for _, d := range c.Documents {
		if err := os.WriteFile(filepath.Join(dir, d.Filename), []byte(d.Content), 0600); err != nil {
			return err
		}
	}
	return nil
}

// normalizeText mirrors what preprocessing and chunking do to a short
// document: whitespace collapsed, words joined by single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
