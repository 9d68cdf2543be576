package app

// Command はアプリケーションのサブコマンドを表す。
type Command string

const (
	// CommandServe はAPIサーバーモード。
	CommandServe Command = "serve"
	// CommandWorker はレビュー同期ワーカーモード。
	CommandWorker Command = "worker"
	// CommandMigrate はDBマイグレーションモード。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックモード。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空、または未知のサブコマンドの場合はserveをデフォルトとする。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "worker":
		return CommandWorker
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
