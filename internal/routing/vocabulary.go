package routing

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Vocabulary - набор терминов. Термин совпадает, если встречается в тексте с начала слова:
// "explain" ловит "explaining", но "cost" не ловит "recost". Работает и для арабского.
type Vocabulary []string

func (v Vocabulary) Match(text string) bool {
	text = strings.ToLower(text)
	for _, term := range v {
		if containsAtWordStart(text, term) {
			return true
		}
	}
	return false
}

func containsAtWordStart(text, term string) bool {
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return false
		}
		pos := offset + i
		if pos == 0 {
			return true
		}
		prev, _ := utf8.DecodeLastRuneInString(text[:pos])
		if !unicode.IsLetter(prev) && !unicode.IsDigit(prev) {
			return true
		}
		offset = pos + len(term)
	}
	return false
}

var (
	CostVocabulary = Vocabulary{
		"cost", "budget", "cheap", "economical", "affordable", "pricing", "price", "expense", "saving",
		"تكلفة", "تكاليف", "ميزانية", "اقتصادي", "توفير",
	}

	AnalyticsVocabulary = Vocabulary{
		"forecast", "predict", "calculate", "trend", "analysis", "analyze", "analyse", "statistic", "projection", "metric", "kpi",
		"تحليل", "توقع", "تنبؤ", "إحصائ", "احسب", "مؤشر",
	}

	ExplanationVocabulary = Vocabulary{
		"explain", "how to", "how do", "what is", "what are", "why", "guide", "help me understand",
		"اشرح", "كيف", "ما هو", "ما هي", "لماذا",
	}
)

// Модули, для которых по умолчанию нужен аналитический провайдер
var AnalyticsModules = []string{"analytics", "executive"}

// Модули общего HR и комплаенса, где важнее понятное объяснение
var HRModules = []string{
	"hr", "employees", "employee", "compliance", "payroll", "leave", "attendance",
	"recruitment", "onboarding", "gosi", "policies", "training", "performance",
}

// moduleIn сравнивает первый сегмент контекста: "executive-dashboard" -> "executive"
func moduleIn(moduleContext string, modules []string) bool {
	head := strings.ToLower(strings.TrimSpace(moduleContext))
	if i := strings.IndexFunc(head, func(r rune) bool { return !unicode.IsLetter(r) }); i >= 0 {
		head = head[:i]
	}
	if head == "" {
		return false
	}
	for _, m := range modules {
		if head == m {
			return true
		}
	}
	return false
}
