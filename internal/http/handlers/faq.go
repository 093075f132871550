package handlers

import (
	"net/http"
)

// FAQEntry is one question/answer pair shown on the booking page.
type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FAQHandler serves the static booking FAQ content.
type FAQHandler struct {
	entries []FAQEntry
}

// NewFAQHandler creates the FAQ handler with the seed content.
func NewFAQHandler() *FAQHandler {
	return &FAQHandler{entries: faqSeed}
}

// List returns all FAQ entries.
func (h *FAQHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"faqs": h.entries})
}

var faqSeed = []FAQEntry{
	{
		Question: "Do I need to be home during the cleaning?",
		Answer:   "No. Many customers provide entry instructions in the booking notes and go about their day.",
	},
	{
		Question: "What if my postal code is not in your service area?",
		Answer:   "We currently serve a fixed set of postal codes. If yours is outside the area, the booking form will let you know before you enter any payment details.",
	},
	{
		Question: "How is my price calculated?",
		Answer:   "Your quote is based on the service you choose, your answers about the home, the cleaning frequency, and any add-on services you select. The price updates as you adjust your selections.",
	},
	{
		Question: "When is my card charged?",
		Answer:   "Your card is securely tokenized when you book. You are charged after each completed cleaning, not at booking time.",
	},
	{
		Question: "Can I change or cancel my booking?",
		Answer:   "Yes. Contact us at least 24 hours before your scheduled cleaning to reschedule or cancel without a fee.",
	},
	{
		Question: "Are your cleaners insured?",
		Answer:   "Yes. Every cleaner is background-checked, bonded, and insured.",
	},
}
