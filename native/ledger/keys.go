package ledger

import "fmt"

func accountKey(token, user [20]byte) []byte {
	return []byte(fmt.Sprintf("ledger/account/%x/%x", token, user))
}

func vaultKey(token [20]byte) []byte {
	return []byte(fmt.Sprintf("ledger/vault/%x", token))
}

func claimableKey(category BalanceCategory, token, user [20]byte) []byte {
	return []byte(fmt.Sprintf("ledger/claim/%d/%x/%x", uint8(category), token, user))
}
