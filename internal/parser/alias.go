package parser

import (
	"sort"
	"strings"
)

type Field string

const (
	FieldLocation Field = "location"
	FieldItem     Field = "item"
	FieldQuantity Field = "quantity"
	FieldDeadline Field = "deadline"
	FieldNote     Field = "note"
)

// RequiredFields are checked in this order by Validate.
var RequiredFields = []Field{FieldLocation, FieldItem, FieldQuantity, FieldDeadline}

// Labels are the names shown to users when a field is missing.
var Labels = map[Field]string{
	FieldLocation: "地點",
	FieldItem:     "物品",
	FieldQuantity: "數量",
	FieldDeadline: "領取期限",
	FieldNote:     "備註",
}

var aliases = map[string]Field{
	"地點":   FieldLocation,
	"位置":   FieldLocation,
	"店家":   FieldLocation,
	"店舖":   FieldLocation,
	"店鋪":   FieldLocation,
	"店名":   FieldLocation,
	"地址":   FieldLocation,
	"地方":   FieldLocation,
	"取餐地點": FieldLocation,
	"領取地點": FieldLocation,

	"物品": FieldItem,
	"品項": FieldItem,
	"品名": FieldItem,
	"商品": FieldItem,
	"食物": FieldItem,
	"餐點": FieldItem,
	"名稱": FieldItem,
	"內容": FieldItem,

	"數量":   FieldQuantity,
	"份數":   FieldQuantity,
	"數目":   FieldQuantity,
	"剩餘數量": FieldQuantity,

	"領取期限": FieldDeadline,
	"領取時間": FieldDeadline,
	"取餐時間": FieldDeadline,
	"截止時間": FieldDeadline,
	"有效期限": FieldDeadline,
	"期限":   FieldDeadline,
	"時間":   FieldDeadline,

	"備註": FieldNote,
	"附註": FieldNote,
	"說明": FieldNote,
	"其他": FieldNote,
}

// LookupAlias resolves a user-facing label to its canonical field.
// Whitespace inside the label is ignored.
func LookupAlias(label string) (Field, bool) {
	f, ok := aliases[strings.Join(strings.Fields(label), "")]
	return f, ok
}

// aliasesByLength lists aliases longest first so that "領取期限" wins over "期限".
func aliasesByLength() []string {
	out := make([]string, 0, len(aliases))
	for a := range aliases {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := len([]rune(out[i])), len([]rune(out[j]))
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	return out
}
