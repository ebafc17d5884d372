package agent

import (
	"fmt"
	"strings"

	"pharmabot/internal/domain"
)

type phrase int

const (
	phGreeting phrase = iota
	phHelp
	phSymptoms
	phUrgent
	phNoSymptom
	phRecommend
	phNoMatch
	phCatalog
	phInfo
	phInfoRx
	phAskProduct
	phConfirmOrder
	phOrderPlaced
	phOrderCancelled
	phAskConfirm
	phUnknownProduct
	phOutOfStock
	phPrescription
	phInteraction
	phSubstitutes
	phNoOrders
	phHistory
	phNoRefills
	phRefills
	phProfile
)

var templates = map[domain.Language]map[phrase]string{
	domain.LangEnglish: {
		phGreeting:       "Hello %s! I can suggest medicines for your symptoms, place orders and remind you about refills. How can I help?",
		phHelp:           "I can help with symptoms, medicine information, orders, order history, refills and your profile.",
		phSymptoms:       "Your symptoms (%s) may indicate %s. This is not a diagnosis; please consult a doctor if they persist.",
		phUrgent:         "Symptoms like %s need medical attention. Please see a doctor or visit the nearest emergency room right away.",
		phNoSymptom:      "Could you describe your symptoms? For example: \"I have fever and a headache\".",
		phRecommend:      "These products from our pharmacy may help:",
		phNoMatch:        "I could not find a product in our catalog for that. Please ask the pharmacist.",
		phCatalog:        "Here are the medicines we have in stock:",
		phInfo:           "%s (%s): ₹%.2f, %d in stock.",
		phInfoRx:         "A prescription on file is required.",
		phAskProduct:     "Which medicine would you like to order, and how many?",
		phConfirmOrder:   "You are ordering %d x %s at ₹%.2f each, total ₹%.2f. Shall I place the order? Reply yes or cancel.",
		phOrderPlaced:    "Your order #%d for %d x %s is placed. Total ₹%.2f. You will get a confirmation shortly.",
		phOrderCancelled: "Okay, I have cancelled that order. Anything else?",
		phAskConfirm:     "Please reply yes to place the order for %s or cancel to drop it.",
		phUnknownProduct: "Sorry, %s is not in our catalog.",
		phOutOfStock:     "Sorry, we only have %d units of %s in stock.",
		phPrescription:   "%s needs a prescription and we do not have one on file for you. You can register one with the pharmacy.",
		phInteraction:    "I cannot order %s: it may interact with %s, which you are taking. %s",
		phSubstitutes:    "You could consider: %s.",
		phNoOrders:       "You have no orders yet.",
		phHistory:        "Your recent orders:",
		phNoRefills:      "No refills are due in the next %d days.",
		phRefills:        "Refills due soon:",
		phProfile:        "Name: %s\nAge: %d\nPhone: %s\nEmail: %s\nAddress: %s\nLanguage: %s",
	},
	domain.LangHindi: {
		phGreeting:       "नमस्ते %s! मैं लक्षणों के लिए दवा सुझा सकता हूँ, ऑर्डर कर सकता हूँ और रिफिल की याद दिला सकता हूँ। बताइए, क्या मदद करूँ?",
		phHelp:           "मैं लक्षण, दवा की जानकारी, ऑर्डर, ऑर्डर इतिहास, रिफिल और आपकी प्रोफाइल में मदद कर सकता हूँ।",
		phSymptoms:       "आपके लक्षण (%s) %s की ओर इशारा कर सकते हैं। यह निदान नहीं है; लक्षण बने रहें तो डॉक्टर से मिलें।",
		phUrgent:         "%s जैसे लक्षणों में तुरंत डॉक्टर को दिखाएँ या नज़दीकी आपातकालीन विभाग जाएँ।",
		phNoSymptom:      "कृपया अपने लक्षण बताइए, जैसे: \"मुझे बुखार और सिरदर्द है\"।",
		phRecommend:      "हमारी फार्मेसी की ये दवाएँ मदद कर सकती हैं:",
		phNoMatch:        "हमारे कैटलॉग में इसके लिए कोई दवा नहीं मिली। कृपया फार्मासिस्ट से पूछें।",
		phCatalog:        "स्टॉक में उपलब्ध दवाएँ:",
		phInfo:           "%s (%s): ₹%.2f, स्टॉक में %d।",
		phInfoRx:         "इसके लिए पर्चा आवश्यक है।",
		phAskProduct:     "आप कौन सी दवा और कितनी मात्रा में ऑर्डर करना चाहेंगे?",
		phConfirmOrder:   "आप %d x %s ₹%.2f प्रति इकाई पर ऑर्डर कर रहे हैं, कुल ₹%.2f। क्या ऑर्डर कर दूँ? हाँ या रद्द कहें।",
		phOrderPlaced:    "आपका ऑर्डर #%d (%d x %s) हो गया है। कुल ₹%.2f। पुष्टि जल्द मिलेगी।",
		phOrderCancelled: "ठीक है, ऑर्डर रद्द कर दिया। और कुछ?",
		phAskConfirm:     "%s का ऑर्डर करने के लिए हाँ कहें या रद्द करने के लिए रद्द कहें।",
		phUnknownProduct: "क्षमा करें, %s हमारे कैटलॉग में नहीं है।",
		phOutOfStock:     "क्षमा करें, %d इकाई ही उपलब्ध है (%s)।",
		phPrescription:   "%s के लिए पर्चा चाहिए, जो आपके रिकॉर्ड में नहीं है।",
		phInteraction:    "%s का ऑर्डर नहीं हो सकता: यह आपकी दवा %s के साथ प्रतिक्रिया कर सकती है। %s",
		phSubstitutes:    "आप इन पर विचार कर सकते हैं: %s।",
		phNoOrders:       "आपका अभी तक कोई ऑर्डर नहीं है।",
		phHistory:        "आपके हाल के ऑर्डर:",
		phNoRefills:      "अगले %d दिनों में कोई रिफिल बाकी नहीं है।",
		phRefills:        "जल्द रिफिल:",
		phProfile:        "नाम: %s\nउम्र: %d\nफ़ोन: %s\nईमेल: %s\nपता: %s\nभाषा: %s",
	},
	domain.LangMarathi: {
		phGreeting:       "नमस्कार %s! मी लक्षणांसाठी औषधे सुचवू शकतो, ऑर्डर करू शकतो आणि रिफिलची आठवण करून देऊ शकतो. काय मदत करू?",
		phHelp:           "मी लक्षणे, औषधांची माहिती, ऑर्डर, ऑर्डर इतिहास, रिफिल आणि तुमच्या प्रोफाइलसाठी मदत करू शकतो.",
		phSymptoms:       "तुमची लक्षणे (%s) %s दर्शवू शकतात. हे निदान नाही; लक्षणे कायम राहिल्यास डॉक्टरांना भेटा.",
		phUrgent:         "%s सारख्या लक्षणांसाठी लगेच डॉक्टरांना भेटा किंवा जवळच्या आपत्कालीन विभागात जा.",
		phNoSymptom:      "कृपया तुमची लक्षणे सांगा, उदा.: \"मला ताप आणि डोकेदुखी आहे\".",
		phRecommend:      "आमच्या फार्मसीतील ही औषधे उपयोगी ठरू शकतात:",
		phNoMatch:        "आमच्या कॅटलॉगमध्ये यासाठी औषध सापडले नाही. कृपया फार्मासिस्टला विचारा.",
		phCatalog:        "स्टॉकमध्ये असलेली औषधे:",
		phInfo:           "%s (%s): ₹%.2f, स्टॉकमध्ये %d.",
		phInfoRx:         "यासाठी प्रिस्क्रिप्शन आवश्यक आहे.",
		phAskProduct:     "तुम्हाला कोणते औषध आणि किती ऑर्डर करायचे आहे?",
		phConfirmOrder:   "तुम्ही %d x %s ₹%.2f प्रति नग दराने ऑर्डर करत आहात, एकूण ₹%.2f. ऑर्डर करू का? होय किंवा नको म्हणा.",
		phOrderPlaced:    "तुमचा ऑर्डर #%d (%d x %s) झाला आहे. एकूण ₹%.2f. पुष्टी लवकरच मिळेल.",
		phOrderCancelled: "ठीक आहे, ऑर्डर रद्द केला. आणखी काही?",
		phAskConfirm:     "%s ऑर्डर करण्यासाठी होय म्हणा किंवा रद्द करण्यासाठी नको म्हणा.",
		phUnknownProduct: "क्षमस्व, %s आमच्या कॅटलॉगमध्ये नाही.",
		phOutOfStock:     "क्षमस्व, फक्त %d नग उपलब्ध आहेत (%s).",
		phPrescription:   "%s साठी प्रिस्क्रिप्शन आवश्यक आहे, जे तुमच्या नोंदीत नाही.",
		phInteraction:    "%s ऑर्डर करता येणार नाही: ते तुमच्या %s औषधासोबत परिणाम करू शकते. %s",
		phSubstitutes:    "तुम्ही यांचा विचार करू शकता: %s.",
		phNoOrders:       "तुमचे अद्याप कोणतेही ऑर्डर नाहीत.",
		phHistory:        "तुमचे अलीकडील ऑर्डर:",
		phNoRefills:      "पुढील %d दिवसांत कोणतेही रिफिल बाकी नाही.",
		phRefills:        "लवकरच रिफिल:",
		phProfile:        "नाव: %s\nवय: %d\nफोन: %s\nईमेल: %s\nपत्ता: %s\nभाषा: %s",
	},
}

// say renders a reply in lang, falling back to English.
func say(lang domain.Language, key phrase, args ...any) string {
	tmpl, ok := templates[lang][key]
	if !ok {
		tmpl = templates[domain.LangEnglish][key]
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

func bulletList(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString("\n- ")
		b.WriteString(l)
	}
	return b.String()
}

func medicineNames(meds []domain.Medicine) []string {
	out := make([]string, 0, len(meds))
	for _, m := range meds {
		out = append(out, m.Name)
	}
	return out
}

func medicineLine(lang domain.Language, m domain.Medicine) string {
	category := m.Category
	if category == "" {
		category = "-"
	}
	line := say(lang, phInfo, m.Name, category, m.Price, m.Stock)
	if m.RequiresPrescription {
		line += " " + say(lang, phInfoRx)
	}
	return line
}

// safetyReply turns a blocked order into a user-facing explanation.
func safetyReply(lang domain.Language, serr *domain.SafetyError) string {
	var msg string
	switch serr.Code {
	case domain.SafetyUnknownProduct:
		msg = say(lang, phUnknownProduct, serr.Product)
	case domain.SafetyOutOfStock:
		msg = say(lang, phOutOfStock, serr.Available, serr.Product)
	case domain.SafetyPrescriptionRequired:
		msg = say(lang, phPrescription, serr.Product)
	case domain.SafetyInteractionWarning:
		msg = say(lang, phInteraction, serr.Product, serr.Interacts, serr.Reason)
	default:
		msg = serr.Reason
	}
	if len(serr.Substitutes) > 0 {
		msg += " " + say(lang, phSubstitutes, strings.Join(medicineNames(serr.Substitutes), ", "))
	}
	return msg
}
