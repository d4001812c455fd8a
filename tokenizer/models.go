package tokenizer

// defaultEncodings maps OpenAI model families to encodings. The o200k
// family is not bundled offline; cl100k produces more tokens than o200k
// for the same text, so those models are counted with cl100k.
var defaultEncodings = map[string]string{
	// o200k family, counted conservatively.
	"gpt-4o":  EncodingCL100K,
	"gpt-4.1": EncodingCL100K,
	"gpt-4.5": EncodingCL100K,
	"gpt-5":   EncodingCL100K,
	"o1":      EncodingCL100K,
	"o3":      EncodingCL100K,
	"o4-mini": EncodingCL100K,

	"gpt-4":                  EncodingCL100K,
	"gpt-3.5-turbo":          EncodingCL100K,
	"gpt-35-turbo":           EncodingCL100K,
	"text-embedding-ada-002": EncodingCL100K,
	"text-embedding-3-":      EncodingCL100K,

	"text-davinci-003": EncodingP50K,
	"text-davinci-002": EncodingP50K,
	"code-davinci-":    EncodingP50K,
	"davinci":          EncodingR50K,
	"curie":            EncodingR50K,
	"babbage":          EncodingR50K,
	"ada":              EncodingR50K,
}

// defaultWindows holds context window sizes in tokens.
var defaultWindows = map[string]int{
	"gpt-4o":           128000,
	"gpt-4.1":          1047576,
	"gpt-4.5":          128000,
	"gpt-5":            400000,
	"o1":               200000,
	"o1-mini":          128000,
	"o3":               200000,
	"o4-mini":          200000,
	"gpt-4-turbo":      128000,
	"gpt-4-1106":       128000,
	"gpt-4-0125":       128000,
	"gpt-4-32k":        32768,
	"gpt-4":            8192,
	"gpt-3.5-turbo":    16385,
	"gpt-35-turbo":     16385,
	"text-davinci-003": 4097,
	"text-davinci-002": 4097,
	"davinci":          2049,

	"claude-opus-4":     200000,
	"claude-sonnet-4":   200000,
	"claude-3-7-sonnet": 200000,
	"claude-3-5-sonnet": 200000,
	"claude-3-5-haiku":  200000,
	"claude-3-opus":     200000,
	"claude-3-haiku":    200000,
}
