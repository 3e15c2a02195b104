package service

import (
	"fmt"
	"strings"
	"time"

	"nearexpiry/internal/models"
)

const (
	msgFollow = "感謝加入！分享即期品請依下列格式傳送：\n" +
		"【地點】\n【物品】\n【數量】\n【領取期限】\n【備註】（選填）\n" +
		"也可以先傳照片，再依回覆補上其他資訊。"
	msgDuplicate     = "這則貼文已經收到了，不會重複發布。"
	msgTokenExpired  = "驗證碼已過期。"
	msgTokenInvalid  = "驗證碼無效。"
	msgImageTooLarge = "圖片檔案太大，請壓縮後再傳一次。"
)

func publishedMessage(f models.ParsedFields) string {
	var b strings.Builder
	b.WriteString("已發布即期品資訊！")
	if f.Item != nil {
		fmt.Fprintf(&b, "\n物品：%s", *f.Item)
	}
	if f.Location != nil {
		fmt.Fprintf(&b, "\n地點：%s", *f.Location)
	}
	if f.Deadline != nil {
		fmt.Fprintf(&b, "\n領取期限：%s", *f.Deadline)
	}
	return b.String()
}

func draftMessage(code string, missing []string, ttl time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "已建立草稿，還缺少：%s\n", strings.Join(missing, "、"))
	fmt.Fprintf(&b, "請在 %d 分鐘內回覆驗證碼 %s 並補上缺少的欄位，例如：\n%s", int(ttl.Minutes()), code, code)
	for _, label := range missing {
		fmt.Fprintf(&b, "\n【%s】", label)
	}
	return b.String()
}

func reminderMessage(missing []string) string {
	return fmt.Sprintf("提醒您，草稿還缺少：%s\n請回覆先前收到的驗證碼並補上欄位，逾時草稿將無法完成。",
		strings.Join(missing, "、"))
}
