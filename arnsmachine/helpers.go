package arnsmachine

import (
	"os"
	"regexp"
	"sort"
	"strconv"
)

func Touch(path string) error {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
	}
	return nil
}

//Contains checks if a slice contains a string
func Contains(s []string, e string) bool {
	for _, a := range s {
		if a == e {
			return true
		}
	}
	return false
}

func Itoa(i int64) string {
	return strconv.FormatInt(i, 10)
}

// SortedKeys returns the keys of a string keyed map in ascending order. Every iteration over
// ledger maps that can influence state goes through here.
func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var arweaveID = regexp.MustCompile(`^[a-zA-Z0-9_-]{43}$`)
var hexPubkey = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidAccount accepts 43 character base64url ids and 64 character hex public keys.
func ValidAccount(a Account) bool {
	return arweaveID.MatchString(a) || hexPubkey.MatchString(a)
}

// ValidTxID accepts 43 character base64url transaction ids.
func ValidTxID(id string) bool {
	return arweaveID.MatchString(id)
}
