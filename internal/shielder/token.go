// token.go - Native and ERC20 token variants.

package shielder

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenKind distinguishes the token variants.
type TokenKind uint8

const (
	TokenNative TokenKind = iota
	TokenERC20
)

func (k TokenKind) String() string {
	switch k {
	case TokenNative:
		return "native"
	case TokenERC20:
		return "erc20"
	default:
		return fmt.Sprintf("TokenKind(%d)", uint8(k))
	}
}

// NativeTokenAddress is the canonical address encoding of the native token.
var NativeTokenAddress = common.Address{}

// Token is either the native currency or an ERC20 contract.
type Token struct {
	kind    TokenKind
	address common.Address
}

// NativeToken is the chain's native currency.
func NativeToken() Token {
	return Token{kind: TokenNative}
}

// ERC20Token is the token contract at address.
func ERC20Token(address common.Address) Token {
	return Token{kind: TokenERC20, address: address}
}

// TokenFromAddress maps the canonical address encoding back to a token.
func TokenFromAddress(address common.Address) Token {
	if address == NativeTokenAddress {
		return NativeToken()
	}
	return ERC20Token(address)
}

// ParseToken accepts "native" or a hex contract address.
func ParseToken(s string) (Token, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "native") {
		return NativeToken(), nil
	}
	if !common.IsHexAddress(s) {
		return Token{}, fmt.Errorf("invalid token %q", s)
	}
	return TokenFromAddress(common.HexToAddress(s)), nil
}

func (t Token) Kind() TokenKind { return t.kind }

func (t Token) IsNative() bool { return t.kind == TokenNative }

// Address returns the canonical address encoding: the zero address for the native token.
func (t Token) Address() common.Address {
	if t.kind == TokenNative {
		return NativeTokenAddress
	}
	return t.address
}

// Field returns the token address as a circuit input.
func (t Token) Field() Scalar {
	return ScalarFromAddress(t.Address())
}

// Key is the registry key of the token.
func (t Token) Key() string {
	return strings.ToLower(t.Address().Hex())
}

func (t Token) String() string {
	if t.kind == TokenNative {
		return "native"
	}
	return t.address.Hex()
}

func (t Token) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Token) UnmarshalText(text []byte) error {
	parsed, err := ParseToken(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
