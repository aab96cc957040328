package trigger

// DefaultPhrases is the ordered trigger list. Order is the tie-break when
// several phrases occur in one comment.
var DefaultPhrases = []string{
	// escalation notices
	"We have escalated your request to the concerned team",
	"your ticket has been escalated to the specialized team",
	"تم تصعيد طلبك إلى الفريق المختص",
	"تم تحويل طلبك إلى القسم المختص",

	// more information needed
	"In order to assist you further, we need more information",
	"Could you please provide us with more details",
	"please share the requested information so we can proceed",
	"نحتاج إلى مزيد من المعلومات",
	"يرجى تزويدنا بالمعلومات المطلوبة",

	// waiting for reply
	"Waiting for your reply",
	"We are awaiting your response",
	"we will wait for your reply",
	"بانتظار ردك",
	"في انتظار ردكم",
}
