package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceExtractor(t *testing.T) {
	extract := ReferenceExtractor()

	t.Run("Detects section references", func(t *testing.T) {
		references := extract("Termination requires written form under § 623 BGB, see also §§ 622.")

		require.GreaterOrEqual(t, len(references), 2)
		assert.Equal(t, "section", references[0].Kind)
		assert.Equal(t, "§ 623 bgb", references[0].Key)
	})

	t.Run("Detects english style sections and articles", func(t *testing.T) {
		references := extract("As set out in Section 4(2) and Article 12 of the directive.")

		keys := make([]string, 0, len(references))
		for _, reference := range references {
			keys = append(keys, reference.Key)
		}
		assert.Contains(t, keys, "section 4(2)")
		assert.Contains(t, keys, "article 12")
	})

	t.Run("Detects named acts", func(t *testing.T) {
		references := extract("Claims follow the Employment Rights Act 1996 in this case.")

		require.Equal(t, 1, len(references))
		assert.Equal(t, "act", references[0].Kind)
		assert.Equal(t, "Employment Rights Act 1996", references[0].Text)
	})

	t.Run("Detects regulations", func(t *testing.T) {
		references := extract("Processing is governed by Regulation (EU) 2016/679.")

		require.Equal(t, 1, len(references))
		assert.Equal(t, "regulation", references[0].Kind)
		assert.Equal(t, "regulation (eu) 2016/679", references[0].Key)
	})

	t.Run("Duplicates collapse onto one reference", func(t *testing.T) {
		references := extract("§ 622 applies. As stated, § 622 governs the notice period.")

		require.Equal(t, 1, len(references))
		assert.Equal(t, "§ 622", references[0].Key)
	})

	t.Run("No references", func(t *testing.T) {
		references := extract("Plain prose without any citations at all.")

		assert.Empty(t, references)
	})
}

func TestNormalizeReference(t *testing.T) {
	assert.Equal(t, "§ 622 bgb", NormalizeReference("  §  622   BGB "))
	assert.Equal(t, "section 4(2)", NormalizeReference("Section 4(2)"))
	assert.Equal(t, "employment rights act 1996", NormalizeReference("Employment Rights Act 1996"))
}
