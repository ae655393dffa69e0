package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/invoicekeeper/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubPassword(t *testing.T, pw string, err error) *int {
	t.Helper()
	calls := 0
	orig := readPassword
	readPassword = func(int) ([]byte, error) {
		calls++
		if err != nil {
			return nil, err
		}
		return []byte(pw), nil
	}
	t.Cleanup(func() { readPassword = orig })
	return &calls
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(bufio.NewReader(strings.NewReader("  billing@example.com \n")), "Email", &out)
	require.NoError(t, err)
	assert.Equal(t, "billing@example.com", got)
	assert.Equal(t, "Email\n> ", out.String())
}

func TestGetSimpleText_EOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(bufio.NewReader(strings.NewReader("lastline")), "Email", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(bufio.NewReader(strings.NewReader("")), "Email", &out)
	assert.Error(t, err)
}

func TestGetPassword(t *testing.T) {
	stubPassword(t, "s3cret-pass", nil)
	var out bytes.Buffer
	pw, err := GetPassword(&out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", string(pw))
	assert.NotContains(t, out.String(), "s3cret-pass")
}

func TestPromptCredentials(t *testing.T) {
	t.Run("prompts for missing values", func(t *testing.T) {
		calls := stubPassword(t, "s3cret-pass", nil)
		cfg := &config.Config{}
		var out bytes.Buffer

		err := PromptCredentials(bufio.NewReader(strings.NewReader("billing@example.com\n")), &out, cfg)
		require.NoError(t, err)
		assert.Equal(t, "billing@example.com", cfg.Email)
		assert.Equal(t, "s3cret-pass", cfg.Password)
		assert.Equal(t, 1, *calls)
	})

	t.Run("keeps configured values", func(t *testing.T) {
		calls := stubPassword(t, "other", nil)
		cfg := &config.Config{Email: "a@example.com", Password: "pw"}

		err := PromptCredentials(bufio.NewReader(strings.NewReader("")), &bytes.Buffer{}, cfg)
		require.NoError(t, err)
		assert.Equal(t, "pw", cfg.Password)
		assert.Zero(t, *calls)
	})

	t.Run("terminal error", func(t *testing.T) {
		stubPassword(t, "", errors.New("not a terminal"))
		cfg := &config.Config{Email: "a@example.com"}

		err := PromptCredentials(bufio.NewReader(strings.NewReader("")), &bytes.Buffer{}, cfg)
		assert.ErrorContains(t, err, "read password")
	})
}
