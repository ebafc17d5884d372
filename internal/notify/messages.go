package notify

import (
	"fmt"
	"strconv"

	"pharmabot/internal/domain"
)

func recipientOf(p domain.Patient) string {
	switch {
	case p.Email != "":
		return p.Email
	case p.Phone != "":
		return p.Phone
	}
	return p.ID
}

// OrderPlaced builds the order confirmation sent after a successful order.
func OrderPlaced(o domain.Order, p domain.Patient) Message {
	return Message{
		Event:     EventOrderPlaced,
		Recipient: recipientOf(p),
		PatientID: p.ID,
		OrderID:   o.ID,
		Subject:   fmt.Sprintf("Order #%d placed", o.ID),
		Body: fmt.Sprintf("Hello %s, your order for %d x %s has been placed. Total price: ₹%.2f.",
			p.Name, o.Quantity, o.ProductName, o.TotalPrice),
		Data: map[string]string{
			"product":  o.ProductName,
			"quantity": strconv.FormatInt(o.Quantity, 10),
			"total":    strconv.FormatFloat(o.TotalPrice, 'f', 2, 64),
			"status":   string(o.Status),
		},
	}
}

var refillTemplates = map[domain.Language]string{
	domain.LangEnglish:   "Hello %s, your %s is likely to run out in %d day(s). Reply to this message to reorder.",
	domain.LangHindi:     "नमस्ते %s, आपकी %s लगभग %d दिन में खत्म हो सकती है। दोबारा ऑर्डर करने के लिए जवाब दें।",
	domain.LangMarathi:   "नमस्कार %s, तुमचे %s सुमारे %d दिवसांत संपू शकते. पुन्हा ऑर्डर करण्यासाठी उत्तर द्या.",
	domain.LangBengali:   "নমস্কার %s, আপনার %s প্রায় %d দিনের মধ্যে শেষ হতে পারে। আবার অর্ডার করতে উত্তর দিন।",
	domain.LangGujarati:  "નમસ્તે %s, તમારી %s લગભગ %d દિવસમાં પૂરી થઈ શકે છે. ફરી ઓર્ડર કરવા જવાબ આપો.",
	domain.LangMalayalam: "നമസ്കാരം %s, നിങ്ങളുടെ %s ഏകദേശം %d ദിവസത്തിനുള്ളിൽ തീരാം. വീണ്ടും ഓർഡർ ചെയ്യാൻ മറുപടി നൽകുക.",
}

// RefillDue builds the proactive refill reminder in the patient's language.
func RefillDue(a domain.RefillAlert, p domain.Patient) Message {
	tmpl, ok := refillTemplates[p.Language]
	if !ok {
		tmpl = refillTemplates[domain.LangEnglish]
	}
	return Message{
		Event:     EventRefillDue,
		Recipient: recipientOf(p),
		PatientID: p.ID,
		Subject:   fmt.Sprintf("Refill reminder: %s", a.ProductName),
		Body:      fmt.Sprintf(tmpl, p.Name, a.ProductName, a.DaysUntilRefill),
		Data: map[string]string{
			"alert_id": a.ID,
			"product":  a.ProductName,
			"due_date": a.DueDate.Format(domain.AlertDayLayout),
		},
	}
}

// LowStock builds the procurement notice sent when stock falls to the threshold.
func LowStock(m domain.Medicine, threshold int64) Message {
	return Message{
		Event:     EventLowStock,
		Recipient: "procurement",
		Subject:   fmt.Sprintf("Low stock: %s", m.Name),
		Body: fmt.Sprintf("%s (%s) is down to %d units (threshold %d). Please replenish.",
			m.Name, m.ProductCode, m.Stock, threshold),
		Data: map[string]string{
			"medicine_id": strconv.FormatInt(m.ID, 10),
			"stock":       strconv.FormatInt(m.Stock, 10),
		},
	}
}
