package qualify

// positiveTokens are spec.md §4.4's Stage 1 business-document signal set.
// Tokens are lowercase; alphabetic ones are matched whole-word, the
// currency glyphs are matched as plain substrings.
var positiveTokens = []string{
	"invoice", "receipt", "payment", "bill", "statement", "transaction",
	"paid", "due", "amount", "total", "purchase", "order", "quote",
	"contract", "refund", "charge", "subscription", "renewal", "expense",
	"usd", "eur", "gbp", "price", "cost",
	"$", "€", "£",
}

// negativeTokens are spec.md §4.4's Stage 1 promotional/phishing signal set.
var negativeTokens = []string{
	"unsubscribe", "click here", "limited time offer", "act now",
	"congratulations", "you won", "free gift", "claim now",
}

// glyphTokens are matched as plain substrings rather than whole words
// since they are not alphabetic.
var glyphTokens = map[string]bool{"$": true, "€": true, "£": true}
