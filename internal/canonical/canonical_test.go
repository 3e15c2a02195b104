package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nearexpiry/internal/models"
	"nearexpiry/internal/parser"
)

func TestCanonical_FieldOrderAndWhitespace(t *testing.T) {
	a := parser.Parse("【地點】山海樓\n【物品】三明治\n【數量】10個")
	b := parser.Parse("【數量】 10個 【物品】三明治\r\n\r\n【地點】  山海樓  ")
	c := parser.Parse("物品: 三明治 地點: 山海樓 數量: 10個")

	assert.Equal(t, Canonical(a), Canonical(b))
	assert.Equal(t, Canonical(a), Canonical(c))
	assert.Equal(t, Hash(a), Hash(c))
}

func TestCanonical_FullWidthFolded(t *testing.T) {
	a := parser.Parse("【數量】１０ 個")
	b := parser.Parse("【數量】10   個")

	assert.Equal(t, Canonical(a), Canonical(b))
}

func TestCanonical_Layout(t *testing.T) {
	loc := "山海樓"
	q := models.Quantity("  約 10 份 ")
	got := Canonical(models.ParsedFields{Location: &loc, Quantity: &q})

	assert.Equal(t, "location=山海樓\nitem=\nquantity=約 10 份\ndeadline=\nnote=\n", got)
}

func TestHash_DiffersOnContent(t *testing.T) {
	a := parser.Parse("【物品】三明治")
	b := parser.Parse("【物品】飯糰")

	assert.NotEqual(t, Hash(a), Hash(b))
	assert.Len(t, Hash(a), 64)
}
