package market

import "fmt"

// Storage abstracts the subset of state manager functionality required by
// the market engines.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	offerRecordPrefix = []byte("market/offer/")
	stockRecordPrefix = []byte("market/stock/")
	makerRecordPrefix = []byte("market/maker/")
	sequenceKey       = []byte("market/sequence")
)

func recordKey(prefix []byte, id [32]byte) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id[:])
	return buf
}

// StoreState persists market records in the underlying key-value store and
// mints the engine's monotonic sequence numbers. It implements the engines'
// state interface.
type StoreState struct {
	store Storage
}

// NewStoreState constructs a state backend bound to the provided storage.
func NewStoreState(store Storage) *StoreState {
	return &StoreState{store: store}
}

// NextSequence increments and persists the global sequence counter. The
// counter is never reset: identifiers derive from it and re-minting a number
// would collide with an existing entity.
func (s *StoreState) NextSequence() (uint64, error) {
	if s == nil || s.store == nil {
		return 0, errNilState
	}
	var seq uint64
	if _, err := s.store.KVGet(sequenceKey, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := s.store.KVPut(sequenceKey, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *StoreState) OfferPut(offer *Offer) error {
	if s == nil || s.store == nil {
		return errNilState
	}
	sanitized, err := SanitizeOffer(offer)
	if err != nil {
		return err
	}
	return s.store.KVPut(recordKey(offerRecordPrefix, sanitized.ID), sanitized)
}

func (s *StoreState) OfferGet(id [32]byte) (*Offer, bool, error) {
	if s == nil || s.store == nil {
		return nil, false, errNilState
	}
	offer := new(Offer)
	ok, err := s.store.KVGet(recordKey(offerRecordPrefix, id), offer)
	if err != nil || !ok {
		return nil, false, err
	}
	return offer, true, nil
}

func (s *StoreState) StockPut(stock *Stock) error {
	if s == nil || s.store == nil {
		return errNilState
	}
	sanitized, err := SanitizeStock(stock)
	if err != nil {
		return err
	}
	return s.store.KVPut(recordKey(stockRecordPrefix, sanitized.ID), sanitized)
}

func (s *StoreState) StockGet(id [32]byte) (*Stock, bool, error) {
	if s == nil || s.store == nil {
		return nil, false, errNilState
	}
	stock := new(Stock)
	ok, err := s.store.KVGet(recordKey(stockRecordPrefix, id), stock)
	if err != nil || !ok {
		return nil, false, err
	}
	return stock, true, nil
}

func (s *StoreState) MakerPut(maker *Maker) error {
	if s == nil || s.store == nil {
		return errNilState
	}
	if maker == nil {
		return fmt.Errorf("market: nil maker")
	}
	clone := maker.Clone()
	return s.store.KVPut(recordKey(makerRecordPrefix, clone.ID), clone)
}

func (s *StoreState) MakerGet(id [32]byte) (*Maker, bool, error) {
	if s == nil || s.store == nil {
		return nil, false, errNilState
	}
	maker := new(Maker)
	ok, err := s.store.KVGet(recordKey(makerRecordPrefix, id), maker)
	if err != nil || !ok {
		return nil, false, err
	}
	return maker, true, nil
}
