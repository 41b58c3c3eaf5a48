package lexer

import (
	"fmt"
	"strings"
	"testing"
)

func BenchmarkLexer(b *testing.B) {
	input := "((Homo_sapiens:0.0063,Pan_troglodytes:0.0068):0.013,Gorilla_gorilla:0.0092,(Pongo_abelii:0.018,Macaca_mulatta:0.038):0.011);"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lex := NewFromString(input)
		for {
			token := lex.NextToken()
			if token.Type == EOF {
				break
			}
		}
	}
}

func BenchmarkLexerLarge(b *testing.B) {
	// A wide comb of labeled, weighted leaves approximates real exports
	var input strings.Builder
	input.WriteByte('(')
	for i := 0; i < 10000; i++ {
		if i > 0 {
			input.WriteByte(',')
		}
		fmt.Fprintf(&input, "taxon_%d:%d.%04d", i, i%7, i%9973)
	}
	input.WriteString(");")
	inputStr := input.String()

	b.ResetTimer()
	b.SetBytes(int64(len(inputStr)))
	for i := 0; i < b.N; i++ {
		lex := NewFromString(inputStr)
		tokenCount := 0
		for {
			token := lex.NextToken()
			if token.Type == EOF {
				break
			}
			tokenCount++
		}
		if tokenCount == 0 {
			b.Fatal("no tokens produced")
		}
	}
}
