package normalize

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// NotAvailable is what DisplayLanguages renders for a record without languages.
const NotAvailable = "N/A"

// knownLanguages maps lowercase ISO 639-1 codes, three letter codes, native
// exonyms and frequent misspellings to the canonical English name.
var knownLanguages = map[string]string{
	"en": "English", "eng": "English", "english": "English", "englsih": "English", "engish": "English",
	"ja": "Japanese", "jp": "Japanese", "jpn": "Japanese", "japanese": "Japanese", "japanes": "Japanese",
	"japaneese": "Japanese", "日本語": "Japanese", "にほんご": "Japanese",
	"ko": "Korean", "kr": "Korean", "kor": "Korean", "korean": "Korean", "korian": "Korean", "한국어": "Korean",
	"zh": "Chinese", "chi": "Chinese", "zho": "Chinese", "chinese": "Chinese", "chinease": "Chinese",
	"中文": "Chinese", "汉语": "Chinese", "漢語": "Chinese",
	"cmn": "Mandarin", "mandarin": "Mandarin", "普通话": "Mandarin", "普通話": "Mandarin",
	"yue": "Cantonese", "cantonese": "Cantonese", "粵語": "Cantonese", "粤语": "Cantonese", "广东话": "Cantonese",
	"es": "Spanish", "spa": "Spanish", "spanish": "Spanish", "spansih": "Spanish", "español": "Spanish",
	"espanol": "Spanish", "castellano": "Spanish",
	"fr": "French", "fre": "French", "fra": "French", "french": "French", "fench": "French",
	"français": "French", "francais": "French",
	"de": "German", "ger": "German", "deu": "German", "german": "German", "deutsch": "German",
	"it": "Italian", "ita": "Italian", "italian": "Italian", "italiano": "Italian",
	"pt": "Portuguese", "por": "Portuguese", "portuguese": "Portuguese", "portugese": "Portuguese",
	"português": "Portuguese", "portugues": "Portuguese",
	"ru": "Russian", "rus": "Russian", "russian": "Russian", "русский": "Russian",
	"hi": "Hindi", "hin": "Hindi", "hindi": "Hindi", "हिन्दी": "Hindi", "हिंदी": "Hindi",
	"ar": "Arabic", "ara": "Arabic", "arabic": "Arabic", "العربية": "Arabic",
	"th": "Thai", "tha": "Thai", "thai": "Thai", "ไทย": "Thai", "ภาษาไทย": "Thai",
	"vi": "Vietnamese", "vie": "Vietnamese", "vietnamese": "Vietnamese", "tiếng việt": "Vietnamese",
	"km": "Khmer", "khm": "Khmer", "khmer": "Khmer", "cambodian": "Khmer", "ខ្មែរ": "Khmer", "ភាសាខ្មែរ": "Khmer",
	"lo": "Lao", "lao": "Lao", "ລາວ": "Lao",
	"my": "Burmese", "bur": "Burmese", "mya": "Burmese", "burmese": "Burmese", "မြန်မာ": "Burmese",
	"id": "Indonesian", "ind": "Indonesian", "indonesian": "Indonesian", "bahasa indonesia": "Indonesian",
	"ms": "Malay", "may": "Malay", "msa": "Malay", "malay": "Malay", "bahasa melayu": "Malay",
	"tl": "Filipino", "fil": "Filipino", "filipino": "Filipino", "tagalog": "Filipino",
	"nl": "Dutch", "dut": "Dutch", "nld": "Dutch", "dutch": "Dutch", "nederlands": "Dutch",
	"sv": "Swedish", "swe": "Swedish", "swedish": "Swedish", "svenska": "Swedish",
	"no": "Norwegian", "nb": "Norwegian", "nor": "Norwegian", "norwegian": "Norwegian", "norsk": "Norwegian",
	"da": "Danish", "dan": "Danish", "danish": "Danish", "dansk": "Danish",
	"fi": "Finnish", "fin": "Finnish", "finnish": "Finnish", "suomi": "Finnish",
	"pl": "Polish", "pol": "Polish", "polish": "Polish", "polski": "Polish",
	"tr": "Turkish", "tur": "Turkish", "turkish": "Turkish", "türkçe": "Turkish",
	"el": "Greek", "gre": "Greek", "ell": "Greek", "greek": "Greek", "ελληνικά": "Greek",
	"he": "Hebrew", "heb": "Hebrew", "hebrew": "Hebrew", "עברית": "Hebrew",
	"fa": "Persian", "per": "Persian", "fas": "Persian", "persian": "Persian", "farsi": "Persian", "فارسی": "Persian",
	"uk": "Ukrainian", "ukr": "Ukrainian", "ukrainian": "Ukrainian", "українська": "Ukrainian",
	"cs": "Czech", "cze": "Czech", "ces": "Czech", "czech": "Czech", "čeština": "Czech",
	"hu": "Hungarian", "hun": "Hungarian", "hungarian": "Hungarian", "magyar": "Hungarian",
	"ro": "Romanian", "rum": "Romanian", "ron": "Romanian", "romanian": "Romanian", "română": "Romanian",
	"ta": "Tamil", "tam": "Tamil", "tamil": "Tamil", "தமிழ்": "Tamil",
	"te": "Telugu", "tel": "Telugu", "telugu": "Telugu", "తెలుగు": "Telugu",
	"bn": "Bengali", "ben": "Bengali", "bengali": "Bengali", "bangla": "Bengali", "বাংলা": "Bengali",
	"ur": "Urdu", "urd": "Urdu", "urdu": "Urdu", "اردو": "Urdu",
}

var englishNames = display.English.Languages()

// LanguageCode maps a single language token to its canonical English name.
// Unknown tokens come back capitalized rather than rejected, so the result is
// never empty for non-empty input.
func LanguageCode(token string) string {
	token = Clean(token)
	if token == "" {
		return ""
	}
	if name, ok := knownLanguages[strings.ToLower(token)]; ok {
		return name
	}
	if name := displayName(token); name != "" && stable(name) {
		return Capitalize(name)
	}
	return Capitalize(token)
}

// displayName is the English locale name of token read as a BCP 47 tag, or
// "" when the tag is unknown or names itself.
func displayName(token string) string {
	tag, err := language.Parse(token)
	if err != nil || tag == language.Und {
		return ""
	}
	name := englishNames.Name(tag)
	if strings.EqualFold(name, token) {
		return ""
	}
	return name
}

// stable reports whether name normalizes to itself. Some locale names are
// also codes of other languages ("Ga" is Irish) and are rejected.
func stable(name string) bool {
	if known, ok := knownLanguages[strings.ToLower(name)]; ok {
		return known == name
	}
	return displayName(name) == ""
}

// Languages normalizes a raw language value into a sorted list of distinct
// canonical names. The result is never nil.
func Languages(raw any) []string {
	tokens := Tokens(raw)
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		name := LanguageCode(t)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DisplayLanguages renders a raw language value for display.
func DisplayLanguages(raw any) string {
	langs := Languages(raw)
	if len(langs) == 0 {
		return NotAvailable
	}
	return strings.Join(langs, ", ")
}
