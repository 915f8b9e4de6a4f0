package ledger

import "github.com/ethereum/go-ethereum/common"

// NativeAsset is the sentinel that stands for the chain's native coin.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// AssetRegistry is the whitelist of acceptable assets. Entries are only ever
// appended; the order of first insertion is kept.
type AssetRegistry struct {
	list []common.Address
	set  map[common.Address]struct{}
}

func newAssetRegistry(assets []common.Address) *AssetRegistry {
	r := &AssetRegistry{set: make(map[common.Address]struct{})}
	r.add(assets)
	return r
}

// IsWhitelisted reports whether asset is acceptable. The native sentinel
// always is.
func (r *AssetRegistry) IsWhitelisted(asset common.Address) bool {
	return asset == NativeAsset || r.isListed(asset)
}

func (r *AssetRegistry) isListed(asset common.Address) bool {
	_, ok := r.set[asset]
	return ok
}

// Assets returns the explicitly added assets in insertion order.
func (r *AssetRegistry) Assets() []common.Address {
	out := make([]common.Address, len(r.list))
	copy(out, r.list)
	return out
}

// primary is the asset ClearBalance sweeps: the first one ever whitelisted.
func (r *AssetRegistry) primary() (common.Address, bool) {
	if len(r.list) == 0 {
		return common.Address{}, false
	}
	return r.list[0], true
}

func (r *AssetRegistry) add(assets []common.Address) {
	for _, a := range assets {
		if a == NativeAsset || r.isListed(a) {
			continue
		}
		r.set[a] = struct{}{}
		r.list = append(r.list, a)
	}
}
