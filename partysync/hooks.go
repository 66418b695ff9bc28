package partysync

import "github.com/gosuda/partysync/partysync/core/common"

// ServerHooks lets a server variant observe the session. Hooks run on the
// polling goroutine while the server lock is held and must not call back
// into the Server.
type ServerHooks interface {
	PlayerJoined(id common.Identity, isSelf bool)
	PlayerLeft(id common.Identity)
	SceneChanged(name string, from common.Identity)
	Ticked(tick uint64)
}

// HostIdentity is reported as the origin of scene changes made through
// Server.SetScene. Allocation never hands it out since MaxPlayers is at most
// 255 and identities start at 0.
const HostIdentity common.Identity = common.MaxPartySize

// NopHooks ignores every event. Embed it to implement a subset.
type NopHooks struct{}

func (NopHooks) PlayerJoined(common.Identity, bool)   {}
func (NopHooks) PlayerLeft(common.Identity)           {}
func (NopHooks) SceneChanged(string, common.Identity) {}
func (NopHooks) Ticked(uint64)                        {}

var _ ServerHooks = NopHooks{}
