package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/budget-pipeline/backend/internal/config"
)

// TestObjectKey проверяет построение ключа и очистку имени файла.
func TestObjectKey(t *testing.T) {
	assert.Equal(t, "uploads/b1/budget.csv", ObjectKey("b1", "budget.csv"))
	assert.Equal(t, "uploads/b1/budget.csv", ObjectKey("b1", "../../etc/budget.csv"))
	assert.Equal(t, "uploads/b1/export.json", ObjectKey("b1", `C:\Users\me\export.json`))
	assert.Equal(t, "uploads/b1/upload", ObjectKey("b1", ""))
}

// TestNewS3ArchiveRequiresSettings проверяет проверку обязательных параметров.
func TestNewS3ArchiveRequiresSettings(t *testing.T) {
	_, err := NewS3Archive(config.ArchiveConfig{Endpoint: "localhost:9000", Bucket: "uploads"})
	require.Error(t, err)

	archive, err := NewS3Archive(config.ArchiveConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "uploads",
	})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", archive.region)
}
