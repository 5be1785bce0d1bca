// Package locale holds the fixed Arabic strings shown to users.
package locale

import (
	"fmt"
	"time"
)

const (
	Progress     = "⏳ جاري جلب الأخبار..."
	Done         = "✅ تم!"
	Allowed      = "✅ يمكنك الآن!"
	NoNews       = "📰 لا توجد أخبار مهمة."
	AdminOnly    = "⛔ هذا الأمر للمشرف فقط."
	PushDone     = "✅ تم إرسال الملخص اليومي."
	PushFailed   = "⚠️ تعذر إرسال الملخص اليومي."
	DefaultSrc   = "مصادر"
	ReadLabel    = "اقرأ"
	DateLayout   = "2006-01-02"
	StampLayout  = "2006-01-02 15:04"
	FooterLayout = "15:04"
)

// Wait renders a remaining cooldown as hours and minutes.
func Wait(hours, minutes int) string {
	return fmt.Sprintf("⏳ انتظر %d ساعة و %d دقيقة", hours, minutes)
}

// DoneNext confirms a delivery and tells the user when they may ask again.
func DoneNext(next time.Time) string {
	return Done + "\n⏰ المرة القادمة: " + next.Format(StampLayout)
}

// Welcome is the /start reply.
func Welcome(cooldownHours int) string {
	return fmt.Sprintf("👋 *أهلاً بك!*\n\n📊 مرة واحدة كل %d ساعة.\n\n/news - 📰 الأخبار\n/status - ⏰ الانتظار", cooldownHours)
}
