package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeIndexName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple", input: "company", expected: "company"},
		{name: "uppercase", input: "Company", expected: "company"},
		{name: "spaces and slashes", input: "job posting/eu", expected: "job_posting_eu"},
		{name: "dots and dashes", input: "profile.v2-beta", expected: "profile_v2_beta"},
		{name: "consecutive invalid chars", input: "a**b", expected: "a_b"},
		{name: "empty", input: "", expected: "unknown"},
		{name: "all invalid", input: "***", expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeIndexName(tt.input))
		})
	}
}

func TestESConfigValidate(t *testing.T) {
	cfg := ESConfig{}
	assert.Error(t, cfg.Validate())

	cfg.Addresses = []string{"http://localhost:9200"}
	assert.NoError(t, cfg.Validate())

	cloud := ESConfig{CloudID: "deployment:abc"}
	assert.NoError(t, cloud.Validate())
}

func TestIndexName(t *testing.T) {
	s := &ESSink{prefix: "goharvest"}
	assert.Equal(t, "goharvest_company", s.indexName("company"))
	assert.Equal(t, "goharvest_unknown", s.indexName(""))
}
