package media

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testItem     = uuid.MustParse("8f14e45f-ceea-467f-a0e6-8ad6f9a2c1b3")
	testProperty = uuid.MustParse("1c383cd3-0b7c-4a3e-9d6b-5a3f0e27c4d1")
)

func TestSchemes(t *testing.T) {
	t.Parallel()

	t.Run("unique", func(t *testing.T) {
		t.Parallel()
		s := UniqueScheme{}
		p := s.FilePath(testItem, testProperty, "logo.png")

		dir, file, ok := strings.Cut(p, "/")
		require.True(t, ok)
		assert.Regexp(t, `^[a-z2-7]{8}$`, dir)
		assert.Equal(t, "logo.png", file)
		assert.Equal(t, dir, s.DeleteDirectory(p))
		assert.Equal(t, p, s.FilePath(testItem, testProperty, "logo.png"))
		assert.NotEqual(t, dir, s.DeleteDirectory(s.FilePath(uuid.New(), testProperty, "logo.png")))
	})

	t.Run("combined", func(t *testing.T) {
		t.Parallel()
		s := CombinedScheme{}
		p := s.FilePath(testItem, testProperty, "logo.png")

		assert.Equal(t, "932cd88cc5960c413d8dd0e9f7850562/logo.png", p)
		assert.Equal(t, "932cd88cc5960c413d8dd0e9f7850562", s.DeleteDirectory(p))
	})

	t.Run("two guids", func(t *testing.T) {
		t.Parallel()
		s := TwoGuidsScheme{}
		p := s.FilePath(testItem, testProperty, "logo.png")

		assert.Equal(t, "8f14e45fceea467fa0e68ad6f9a2c1b3/1c383cd30b7c4a3e9d6b5a3f0e27c4d1/logo.png", p)
		assert.Equal(t, "8f14e45fceea467fa0e68ad6f9a2c1b3/1c383cd30b7c4a3e9d6b5a3f0e27c4d1", s.DeleteDirectory(p))
	})

	t.Run("lookup by name", func(t *testing.T) {
		t.Parallel()
		for name, want := range map[string]PathScheme{
			"":          UniqueScheme{},
			"unique":    UniqueScheme{},
			"combined":  CombinedScheme{},
			"two-guids": TwoGuidsScheme{},
		} {
			got, err := NewScheme(name)
			require.NoError(t, err, name)
			assert.IsType(t, want, got, name)
		}
		_, err := NewScheme("flat")
		assert.Error(t, err)
	})
}

func TestSafeFileName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"logo.png":                    "logo.png",
		"../../etc/passwd":            "passwd",
		`C:\uploads\My Photo (1).JPG`: "My-Photo-1.JPG",
		"  spaced  out  .txt":         "spaced-out.txt",
		"???":                         "file",
		"résumé.pdf":                  "r-sum.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeFileName(in), in)
	}
}
