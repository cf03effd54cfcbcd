package auth

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/chatdefi/internal/llm"
	"github.com/yolodolo42/chatdefi/internal/testutil"
)

func TestNewStore(t *testing.T) {
	t.Run("creates data directory", func(t *testing.T) {
		dir := filepath.Join(testutil.TempDir(t), "newdir")
		store, err := NewStore(dir)
		require.NoError(t, err)
		require.NotNil(t, store)
		assert.DirExists(t, dir)
	})

	t.Run("loads existing auth.json", func(t *testing.T) {
		dir := testutil.TempDir(t)
		body := `{"version":1,"keys":{"anthropic":"sk-ant-123"},"default_provider":"anthropic"}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.json"), []byte(body), 0o600))

		store, err := NewStore(dir)
		require.NoError(t, err)
		key, err := store.Key(llm.ProviderAnthropic)
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-123", key)
		assert.Equal(t, llm.ProviderAnthropic, store.DefaultProvider())
	})

	t.Run("missing keys field", func(t *testing.T) {
		dir := testutil.TempDir(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.json"), []byte(`{"version":1}`), 0o600))

		store, err := NewStore(dir)
		require.NoError(t, err)
		require.NoError(t, store.SetKey(llm.ProviderOpenAI, "sk"))
	})

	t.Run("corrupt auth.json", func(t *testing.T) {
		dir := testutil.TempDir(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.json"), []byte("not valid json"), 0o600))
		_, err := NewStore(dir)
		require.Error(t, err)
	})
}

func TestStore_Keys(t *testing.T) {
	dir := testutil.TempDir(t)
	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.Key(llm.ProviderGemini)
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, store.SetKey(llm.ProviderGemini, "g-key"))
	require.NoError(t, store.SetKey(llm.ProviderAnthropic, "a-key"))
	require.NoError(t, store.SetDefaultProvider(llm.ProviderGemini))
	assert.Equal(t, []llm.ProviderID{llm.ProviderAnthropic, llm.ProviderGemini}, store.Providers())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	key, err := reopened.Key(llm.ProviderGemini)
	require.NoError(t, err)
	assert.Equal(t, "g-key", key)
	assert.Equal(t, llm.ProviderGemini, reopened.DefaultProvider())

	require.NoError(t, reopened.RemoveKey(llm.ProviderGemini))
	assert.Equal(t, llm.ProviderID(""), reopened.DefaultProvider())
	_, err = reopened.Key(llm.ProviderGemini)
	assert.ErrorIs(t, err, ErrNoCredential)

	// removing twice is fine
	require.NoError(t, reopened.RemoveKey(llm.ProviderGemini))
}

func TestStore_FilePermissions(t *testing.T) {
	dir := testutil.TempDir(t)
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SetKey(llm.ProviderAnthropic, "test"))

	info, err := os.Stat(filepath.Join(dir, "auth.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.NoFileExists(t, filepath.Join(dir, "auth.json.tmp"))
}

func TestStore_Concurrency(t *testing.T) {
	store, err := NewStore(testutil.TempDir(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.SetKey(llm.ProviderAnthropic, "key-"+string(rune('0'+i)))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.Key(llm.ProviderAnthropic)
			store.Providers()
			store.DefaultProvider()
		}()
	}
	wg.Wait()

	key, err := store.Key(llm.ProviderAnthropic)
	require.NoError(t, err)
	assert.Contains(t, key, "key-")
}
