package help

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/query"
)

var (
	filterFlag = regexp.MustCompile(`--filter "([^"]+)"`)
	tableFlag  = regexp.MustCompile(`--table (\S+)`)
	likeCond   = regexp.MustCompile(`~(\S+)`)
)

func TestQuickstartYAML_Parses(t *testing.T) {
	var doc struct {
		Commands map[string]string `yaml:"commands"`
		Tables   map[string]string `yaml:"tables"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(QuickstartYAML), &doc))
	assert.NotEmpty(t, doc.Commands)
	for name := range doc.Tables {
		_, err := models.ParseTableType(name)
		assert.NoError(t, err, name)
	}
}

func TestQuickstartYAML_FiltersAreValid(t *testing.T) {
	found := 0
	for _, line := range strings.Split(QuickstartYAML, "\n") {
		m := filterFlag.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		found++
		table := models.TableRecords
		if tm := tableFlag.FindStringSubmatch(line); tm != nil {
			table = models.TableType(tm[1])
		}
		_, err := query.ParseFilter(table, m[1])
		require.NoError(t, err, line)
		for _, cond := range likeCond.FindAllStringSubmatch(m[1], -1) {
			assert.Contains(t, cond[1], "%", "pattern without a wildcard in %q", line)
		}
	}
	assert.GreaterOrEqual(t, found, 2)
}
