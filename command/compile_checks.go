package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[EnablePushMessage]     = (*EnablePushCommand)(nil)
	_ gocmd.Commander[DisablePushMessage]    = (*DisablePushCommand)(nil)
	_ gocmd.Commander[DisableAllPushMessage] = (*DisableAllPushCommand)(nil)
	_ gocmd.Commander[ExecuteQueuedMessage]  = (*ExecuteQueuedCommand)(nil)
	_ gocmd.Commander[PruneActivityMessage]  = (*PruneActivityCommand)(nil)
)
