package db

// IndexedEventRow is the raw row shape of the indexed_event table.
type IndexedEventRow struct {
	ID              string
	ContractAddress string
	EventType       string
	BlockNumber     int64
	TransactionHash string
	LogIndex        int64
	Timestamp       int64
	DecodedData     string // JSON object
	DecodedFields   string // JSON array of field names
	RawKeys         string // JSON array
	RawData         string // JSON array
}
