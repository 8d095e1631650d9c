package syntax

import "github.com/erlscope/erlscope/internal/types"

// TokenKind represents the kind of token.
type TokenKind uint8

const (
	// Special
	TokenIllegal TokenKind = iota

	// Trivia - preserved in the tree so source text round-trips exactly
	TokenWhitespace
	TokenComment // '%' to end of line

	// Literals & identifiers
	TokenAtom     // foo, 'quoted atom'
	TokenVariable // Foo, _Acc, _
	TokenKeyword  // case, of, end, fun, when, receive, ...
	TokenInteger  // 42, 16#FF, 2#101
	TokenFloat    // 3.14, 1.0e10
	TokenString   // "text"
	TokenChar     // $a, $\n

	// Punctuation
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenSemi      // ;
	TokenColon     // :
	TokenDot       // '.' terminating a form (followed by whitespace or EOF)
	TokenPeriod    // '.' inside record access (X#r.field)
	TokenHash      // #
	TokenQuestion  // ? (macro use)
	TokenBar       // |
	TokenDoubleBar // ||
	TokenArrow     // ->
	TokenLArrow    // <-
	TokenDArrow    // <=
	TokenBinOpen   // <<
	TokenBinClose  // >>

	// Operators
	TokenMatch       // =
	TokenSend        // !
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenPlusPlus    // ++
	TokenMinusMinus  // --
	TokenEq          // ==
	TokenNotEq       // /=
	TokenLtEq        // =<
	TokenGtEq        // >=
	TokenLt          // <
	TokenGt          // >
	TokenExactEq     // =:=
	TokenExactNe     // =/=
	TokenMapAssoc    // =>
	TokenMapExact    // :=
	TokenDoubleColon // ::
)

// Token is a single lexed unit. Text always aliases the exact source bytes
// the token covers, including trivia, so concatenating token texts in order
// reconstructs the input.
type Token struct {
	Kind  TokenKind
	Range types.Range
	Text  string
}

// IsTrivia reports whether the token is whitespace or a comment.
func (t Token) IsTrivia() bool {
	return t.Kind == TokenWhitespace || t.Kind == TokenComment
}

// keywords that structure expressions. 'end' closes every block keyword.
var keywords = map[string]bool{
	"after": true, "and": true, "andalso": true, "band": true, "begin": true,
	"bnot": true, "bor": true, "bsl": true, "bsr": true, "bxor": true,
	"case": true, "catch": true, "cond": true, "div": true, "end": true,
	"fun": true, "if": true, "maybe": true, "not": true, "of": true,
	"or": true, "orelse": true, "receive": true, "rem": true, "try": true,
	"when": true, "xor": true,
}

// blockOpeners are keywords balanced by a matching 'end'.
var blockOpeners = map[string]bool{
	"case": true, "if": true, "receive": true, "try": true,
	"begin": true, "maybe": true,
}
