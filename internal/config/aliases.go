package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

type alias struct{ from, to string }

// aliases maps deprecated config-file keys to their canonical key. When two
// deprecated keys name the same canonical key, the earlier entry wins.
var aliases = []alias{
	{"stock_symbols", "symbols"},
	{"stocks", "symbols"},
	{"stock_names", "company_names"},
	{"days_of_price_data", "data.lookback_days"},
	{"days_of_historical_data", "data.lookback_days"},
	{"prediction_days", "forecast.horizon"},
	{"max_tokens", "llm.max_tokens"},
	{"max_ollama_tokens", "llm.max_tokens"},
	{"temperature", "llm.temperature"},
	{"ollama_model", "llm.model"},
	{"ollama_base_url", "llm.ollama_url"},
	{"max_news_articles", "news.max_articles"},
	{"news_lookback_days", "news.lookback_days"},
	{"output_dir", "report.output_dir"},
	{"timezone", "schedule.timezone"},
}

// envAliases maps legacy environment variable names to canonical keys, in
// the same precedence order.
var envAliases = []alias{
	{"STOCK_SYMBOLS", "symbols"},
	{"STOCKS", "symbols"},
	{"DAYS_OF_HISTORICAL_DATA", "data.lookback_days"},
	{"PREDICTION_DAYS", "forecast.horizon"},
	{"MAX_OLLAMA_TOKENS", "llm.max_tokens"},
	{"OLLAMA_MODEL", "llm.model"},
	{"OLLAMA_BASE_URL", "llm.ollama_url"},
	{"OUTPUT_DIR", "report.output_dir"},
}

// Aliases returns a copy of the deprecated-to-canonical key map.
func Aliases() map[string]string {
	out := make(map[string]string, len(aliases))
	for _, a := range aliases {
		out[a.from] = a.to
	}
	return out
}

// applyAliases copies deprecated values onto canonical keys. A canonical key
// set in the file or through its STOCKPILOT_ variable always wins.
func applyAliases(v *viper.Viper) {
	done := make(map[string]bool)
	for _, a := range aliases {
		if done[a.to] || !v.InConfig(a.from) || v.InConfig(a.to) || canonicalEnvSet(a.to) {
			continue
		}
		v.Set(a.to, v.Get(a.from))
		done[a.to] = true
	}
	clear(done)
	for _, a := range envAliases {
		val, ok := os.LookupEnv(a.from)
		if done[a.to] || !ok || val == "" || canonicalEnvSet(a.to) {
			continue
		}
		done[a.to] = true
		if a.to == "symbols" {
			v.Set(a.to, strings.Split(val, ","))
			continue
		}
		v.Set(a.to, val)
	}
}

// EnvName returns the STOCKPILOT_ variable for a config key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func canonicalEnvSet(key string) bool {
	_, ok := os.LookupEnv(EnvName(key))
	return ok
}
