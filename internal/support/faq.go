package support

type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

var faq = []FAQItem{
	{
		Question: "How do I get VIP access?",
		Answer:   "Pay through the bot and send a screenshot of the payment confirmation.",
	},
	{
		Question: "How long does VIP access last?",
		Answer:   "VIP access lasts 30 days from the moment the payment is confirmed.",
	},
	{
		Question: "Can I get a refund?",
		Answer:   "Refunds are possible within 24 hours of payment when there is a good reason.",
	},
	{
		Question: "What if my payment was not confirmed?",
		Answer:   "Contact support with the payment screenshot and the transaction number.",
	},
	{
		Question: "How do I renew VIP access?",
		Answer:   "Three days before your access expires you will get a notification with a renewal option.",
	},
}

// FAQ returns the frequently asked questions.
func FAQ() []FAQItem {
	return append([]FAQItem(nil), faq...)
}
