// Package domain holds the shared data types for the launchpad: the
// Rune identifier and metadata shapes, the etching process record and
// its state machine, the fee cache, and the role/principal types used
// by every other launchpad package.
package domain

import "fmt"

// RuneKey identifies a Rune by the Bitcoin block height and
// within-block transaction index at which it was etched.
type RuneKey struct {
	Block   uint64 `json:"block"`
	TxIndex uint32 `json:"tx_index"`
}

func (k RuneKey) String() string {
	return fmt.Sprintf("%d:%d", k.Block, k.TxIndex)
}

// Less implements the RuneKey tie-break ordering used by the registry
// for deterministic sort ties and by the runestone edict encoder.
func (k RuneKey) Less(other RuneKey) bool {
	if k.Block != other.Block {
		return k.Block < other.Block
	}
	return k.TxIndex < other.TxIndex
}

// MintTerms describes an optional open-mint schedule for a Rune.
type MintTerms struct {
	Amount uint64 `json:"amount"`
	Cap    uint64 `json:"cap"`
	// HeightStart and HeightEnd bound the block-height window during
	// which mints are accepted. Zero means unbounded on that side.
	HeightStart uint64 `json:"height_start,omitempty"`
	HeightEnd   uint64 `json:"height_end,omitempty"`
}

// RuneMetadata is the immutable description of an etched Rune.
type RuneMetadata struct {
	Key             RuneKey    `json:"key"`
	Name            string     `json:"name"`
	Symbol          string     `json:"symbol"`
	Divisibility    uint8      `json:"divisibility"`
	Premine         uint64     `json:"premine"`
	TotalSupply     uint64     `json:"total_supply"`
	Terms           *MintTerms `json:"terms,omitempty"`
	EtcherPrincipal Principal  `json:"etcher_principal"`
	CreatedAt       int64      `json:"created_at"`
}

// BondingCurve optionally describes a price curve attached to a Rune.
// Nothing in this repository computes curve prices; the descriptor is
// carried through the registry for external consumers.
type BondingCurve struct {
	Kind       string  `json:"kind"`
	BasePrice  float64 `json:"base_price"`
	Slope      float64 `json:"slope"`
	SupplyCap  uint64  `json:"supply_cap"`
}

// RegistryEntry wraps RuneMetadata with the dynamic stats that the
// registry's update_stats operation mutates.
type RegistryEntry struct {
	Metadata          RuneMetadata  `json:"metadata"`
	HolderCount        uint64        `json:"holder_count"`
	TradingVolume24h    uint64        `json:"trading_volume_24h"`
	IndexedAt          int64         `json:"indexed_at"`
	BondingCurve       *BondingCurve `json:"bonding_curve,omitempty"`
	RawRunestoneHex    string        `json:"raw_runestone_hex"`
}

// StatsDelta carries the fields update_stats is permitted to change.
// Each field is added to its counter; a zero delta leaves the counter
// untouched, and a negative delta larger than the counter floors it at
// zero.
type StatsDelta struct {
	HolderCountDelta     int64
	TradingVolumeDelta   int64
}

// EtchingState enumerates the orchestrator's state machine states.
type EtchingState string

const (
	StatePending             EtchingState = "Pending"
	StateValidating          EtchingState = "Validating"
	StateCheckingBalance     EtchingState = "CheckingBalance"
	StateSelectingUtxos      EtchingState = "SelectingUtxos"
	StateBuildingTransaction EtchingState = "BuildingTransaction"
	StateSigningTransaction  EtchingState = "SigningTransaction"
	StateBroadcasting        EtchingState = "Broadcasting"
	StateAwaitingConfirmation EtchingState = "AwaitingConfirmation"
	StateIndexing            EtchingState = "Indexing"
	StateCompleted           EtchingState = "Completed"
	StateFailed              EtchingState = "Failed"
)

// Terminal reports whether s is a terminal state of the machine.
func (s EtchingState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// EtchingSpec is the caller-supplied request body for create_rune.
type EtchingSpec struct {
	RuneName     string     `json:"rune_name"`
	Symbol       string     `json:"symbol"`
	Divisibility uint8      `json:"divisibility"`
	Premine      uint64     `json:"premine"`
	Terms        *MintTerms `json:"terms,omitempty"`
}

// EtchingProcess is one record per etching attempt.
type EtchingProcess struct {
	ProcessID      string       `json:"process_id"`
	SweepID        string       `json:"sweep_id"`
	OwnerPrincipal Principal    `json:"owner_principal"`
	RuneName       string       `json:"rune_name"`
	Spec           EtchingSpec  `json:"etching_spec"`
	State          EtchingState `json:"state"`
	Txid           string       `json:"txid,omitempty"`
	RetryCount     int          `json:"retry_count"`
	LastErrorKind  string       `json:"last_error_kind,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
	CreatedAt      int64        `json:"created_at"`
	UpdatedAt      int64        `json:"updated_at"`
}

// PendingConfirmation tracks a broadcast transaction awaiting chain
// confirmation.
type PendingConfirmation struct {
	Txid                 string `json:"txid"`
	ProcessID            string `json:"process_id"`
	RequiredConfirmations uint32 `json:"required_confirmations"`
	LastCheckedAt        int64  `json:"last_checked_at"`
	Attempts             int    `json:"attempts"`
	Provider             string `json:"provider,omitempty"`
	BroadcastAt          int64  `json:"broadcast_at"`
}

// FeeTier names a priority tier for fee estimation.
type FeeTier string

const (
	FeeTierSlow   FeeTier = "Slow"
	FeeTierMedium FeeTier = "Medium"
	FeeTierFast   FeeTier = "Fast"
	FeeTierUrgent FeeTier = "Urgent"
)

// CachedFeeEstimates holds the four fee tiers, in sat/vbyte.
type CachedFeeEstimates struct {
	Slow      uint64 `json:"slow"`
	Medium    uint64 `json:"medium"`
	Fast      uint64 `json:"fast"`
	Urgent    uint64 `json:"urgent"`
	FetchedAt int64  `json:"fetched_at"`
	Source    string `json:"source"`
}

// ForTier returns the cached rate for the given priority tier.
func (c CachedFeeEstimates) ForTier(t FeeTier) uint64 {
	switch t {
	case FeeTierSlow:
		return c.Slow
	case FeeTierMedium:
		return c.Medium
	case FeeTierFast:
		return c.Fast
	case FeeTierUrgent:
		return c.Urgent
	default:
		return c.Medium
	}
}

// Principal identifies a caller. It is an opaque string identifier
// (e.g. a pubkey hash or account id) rather than a parsed type,
// matching how the orchestrator and registry only ever compare and
// hash it.
type Principal string

// Role is a position in the RBAC lattice Owner > Admin > Operator > User.
type Role string

const (
	RoleOwner    Role = "Owner"
	RoleAdmin    Role = "Admin"
	RoleOperator Role = "Operator"
	RoleUser     Role = "User"
)

var roleRank = map[Role]int{
	RoleOwner:    4,
	RoleAdmin:    3,
	RoleOperator: 2,
	RoleUser:     1,
}

// AtLeast reports whether r is at or above min in the role lattice.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// RoleAssignment binds a principal to a role, with audit metadata.
type RoleAssignment struct {
	Principal  Principal `json:"principal"`
	Role       Role      `json:"role"`
	GrantedBy  Principal `json:"granted_by"`
	GrantedAt  int64     `json:"granted_at"`
}

// Utxo is a read-through view of an unspent output at a derived
// Taproot address. Authoritative source is the external Bitcoin query
// interface; this type is never owned locally.
type Utxo struct {
	Txid          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	ValueSats     uint64 `json:"value_sats"`
	Confirmations uint32 `json:"confirmations"`
	ScriptPubKey  []byte `json:"script_pub_key"`
}

// Outpoint returns the "txid:vout" string form of the UTXO's outpoint.
func (u Utxo) Outpoint() string {
	return fmt.Sprintf("%s:%d", u.Txid, u.Vout)
}

// SortField names a registry list_runes sort dimension.
type SortField string

const (
	SortByBlock     SortField = "Block"
	SortByName      SortField = "Name"
	SortByVolume    SortField = "Volume"
	SortByHolders   SortField = "Holders"
	SortByIndexedAt SortField = "IndexedAt"
)

// SortOrder names ascending/descending order for a list_runes query.
type SortOrder string

const (
	SortAsc  SortOrder = "Asc"
	SortDesc SortOrder = "Desc"
)

// Page is a list_runes pagination request.
type Page struct {
	Offset    int       `json:"offset"`
	Limit     int       `json:"limit"`
	SortBy    SortField `json:"sort_by,omitempty"`
	SortOrder SortOrder `json:"sort_order,omitempty"`
}

// PagedResponse is the reply envelope for list_runes.
type PagedResponse struct {
	Items      []RegistryEntry `json:"items"`
	Total      int             `json:"total"`
	Offset     int             `json:"offset"`
	Limit      int             `json:"limit"`
	HasMore    bool            `json:"has_more"`
	NextOffset *int            `json:"next_offset,omitempty"`
}

// Network names the Bitcoin network the service is configured for.
type Network string

const (
	NetworkMainnet Network = "Mainnet"
	NetworkTestnet Network = "Testnet"
	NetworkRegtest Network = "Regtest"
)
