package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/rules"
)

func corruptRulesDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "acme", "technical_rules.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`{"paid_amount_threshold": `), 0644))
	return dir
}

func TestNewRuleStore_JSONLogs(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Rules.Dir = corruptRulesDir(t)
	cfg.Output.JSONLog = true

	var buf bytes.Buffer
	doc, err := newRuleStore(cfg, &buf).Get(context.Background(), "acme", model.RuleKindTechnical)
	require.NoError(t, err)
	assert.Equal(t, rules.OriginBuiltin, doc.Origin)

	line := strings.TrimSpace(strings.Split(buf.String(), "\n")[0])
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "corrupt rule document, falling back", entry["message"])
}

func TestNewRuleStore_ConsoleLogs(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Rules.Dir = corruptRulesDir(t)
	cfg.Output.JSONLog = false

	var buf bytes.Buffer
	_, err := newRuleStore(cfg, &buf).Get(context.Background(), "acme", model.RuleKindTechnical)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "corrupt rule document, falling back")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
}
