package jack

import (
	"encoding/xml"
	"fmt"
	"io"
)

// xmlTagFor maps a TokenType to the element name the trace format uses for it.
func xmlTagFor(t TokenType) (string, error) {
	switch t {
	case TokenKeyword:
		return "keyword", nil
	case TokenSymbol:
		return "symbol", nil
	case TokenIdentifier:
		return "identifier", nil
	case TokenIntConst:
		return "integerConstant", nil
	case TokenStrConst:
		return "stringConstant", nil
	default:
		return "", fmt.Errorf("unrecognized token type: %s", t)
	}
}

// WriteTokenTrace renders 'tokens' as the '<tokens>...</tokens>' trace document,
// one child element per token in source order, and writes it to 'w'.
func WriteTokenTrace(w io.Writer, tokens []Token) error {
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "tokens"}}
	if err := encoder.EncodeToken(root); err != nil {
		return fmt.Errorf("unable to write opening '<tokens>' tag: %w", err)
	}

	for _, token := range tokens {
		tag, err := xmlTagFor(token.Type)
		if err != nil {
			return err
		}

		elem := xml.StartElement{Name: xml.Name{Local: tag}}
		if err := encoder.EncodeToken(elem); err != nil {
			return fmt.Errorf("unable to write '<%s>' tag: %w", tag, err)
		}
		if err := encoder.EncodeToken(xml.CharData(fmt.Sprintf(" %s ", token.Value))); err != nil {
			return fmt.Errorf("unable to write token value for '<%s>': %w", tag, err)
		}
		if err := encoder.EncodeToken(elem.End()); err != nil {
			return fmt.Errorf("unable to write closing '</%s>' tag: %w", tag, err)
		}
	}

	if err := encoder.EncodeToken(root.End()); err != nil {
		return fmt.Errorf("unable to write closing '</tokens>' tag: %w", err)
	}

	return encoder.Flush()
}
