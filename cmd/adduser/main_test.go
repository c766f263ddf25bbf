package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger/memory"
)

func TestReadPassword_Piped(t *testing.T) {
	got, err := readPassword(strings.NewReader("s3cret\nignored\n"), &bytes.Buffer{}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	got, err = readPassword(strings.NewReader("no-newline"), &bytes.Buffer{}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)
}

func TestReadPassword_Terminal(t *testing.T) {
	answers := func(values ...string) func() ([]byte, error) {
		i := 0
		return func() ([]byte, error) {
			v := values[i]
			i++
			return []byte(v), nil
		}
	}

	var prompt bytes.Buffer
	got, err := readPassword(nil, &prompt, true, answers("pw", "pw"))
	require.NoError(t, err)
	assert.Equal(t, "pw", got)
	assert.Contains(t, prompt.String(), "Repeat password")

	_, err = readPassword(nil, &bytes.Buffer{}, true, answers("pw", "other"))
	assert.EqualError(t, err, "passwords do not match")

	boom := errors.New("tty gone")
	_, err = readPassword(nil, &bytes.Buffer{}, true, func() ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	u, err := createUser(ctx, store, " ada ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Username)
	assert.True(t, core.CheckPassword(u.PasswordHash, "s3cret"))
	assert.NotEqual(t, "s3cret", u.PasswordHash)

	_, err = createUser(ctx, store, "ada", "again")
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	_, err = createUser(ctx, store, "bob", "")
	assert.ErrorIs(t, err, core.ErrValidation)
}
