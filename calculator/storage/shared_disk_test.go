package storage

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharedDiskReadWrite(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	err := store.Write("invoices/abc/invoice.txt", strings.NewReader("faktura"))
	assert.NoError(t, err)

	exists, err := store.Exists("invoices/abc/invoice.txt")
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists("invoices/missing.txt")
	assert.NoError(t, err)
	assert.False(t, exists)

	reader, err := store.Read("invoices/abc/invoice.txt")
	assert.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Equal(t, "faktura", string(content))

	size, err := store.Size("invoices/abc/invoice.txt")
	assert.NoError(t, err)
	assert.Equal(t, int64(7), size)
}

func TestSharedDiskAppend(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	assert.NoError(t, store.Append("log.txt", bytes.NewReader([]byte("a"))))
	assert.NoError(t, store.Append("log.txt", bytes.NewReader([]byte("b"))))

	reader, err := store.Read("log.txt")
	assert.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Equal(t, "ab", string(content))
}

func TestSharedDiskListAndDelete(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	assert.NoError(t, store.Write("invoices/a/x.txt", strings.NewReader("1")))
	assert.NoError(t, store.Write("invoices/b/y.txt", strings.NewReader("2")))

	entries, err := store.List("invoices")
	assert.NoError(t, err)
	assert.Len(t, entries, 2)

	assert.NoError(t, store.Delete("invoices/a"))

	exists, err := store.Exists("invoices/a/x.txt")
	assert.NoError(t, err)
	assert.False(t, exists)
}
