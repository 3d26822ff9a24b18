package creditgate_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cg "github.com/ineyio/creditgate"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := cg.ParseConfig([]byte("instructions: Answer briefly.\n"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.Pricing.Chat)
	assert.Equal(t, 2.0, cfg.Pricing.RAG)
	assert.Equal(t, 60*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Provider.ProbeTimeout)
	assert.Equal(t, 0.7, cfg.Provider.Temperature)
	assert.Equal(t, 1000, cfg.Retrieval.ChunkSize)
	assert.Equal(t, int64(3000), cfg.Retrieval.PromptBudget)
	assert.Equal(t, "memory", cfg.Ledger.Backend)
	assert.Equal(t, "Answer briefly.", cfg.Instructions)

	tariff := cfg.Tariff()
	assert.True(t, tariff.Chat.Equal(dec("1")))
	assert.True(t, tariff.RAG.Equal(dec("2")))
}

func TestParseConfig_Full(t *testing.T) {
	t.Setenv("CG_TEST_KEY", "sk-from-env")
	cfg, err := cg.ParseConfig([]byte(`
tariff:
  chat: 0.5
  rag: 1.25
provider:
  timeout: 30s
  probe_timeout: 2s
retrieval:
  chunk_size: 500
  top_k: 5
  embeds_per_second: 10
embedder:
  kind: openai
  api_key: ${CG_TEST_KEY}
ledger:
  backend: sqlite
  dsn: /tmp/credits.db
`))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Provider.ProbeTimeout)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "sk-from-env", cfg.Embedder.APIKey)
	assert.True(t, cfg.Tariff().RAG.Equal(dec("1.25")))
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"negative tariff":  "tariff:\n  chat: -1\n",
		"bad ledger":       "ledger:\n  backend: mongo\n",
		"sqlite needs dsn": "ledger:\n  backend: sqlite\n",
		"redis needs addr": "ledger:\n  backend: redis\n",
		"ollama needs url": "embedder:\n  kind: ollama\n  model: nomic-embed-text\n",
		"bad embedder":     "embedder:\n  kind: word2vec\n",
		"hot temperature":  "provider:\n  temperature: 3\n",
		"not yaml":         "tariff: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := cg.ParseConfig([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creditgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tariff:\n  rag: 3\n"), 0o600))

	cfg, err := cg.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.Pricing.RAG)

	_, err = cg.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
