package kvstore

var nsKV = []byte("/kv/")

func entryKey(key []byte) []byte {
	return append(append([]byte{}, nsKV...), key...)
}
