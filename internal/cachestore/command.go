package cachestore

import "context"

// command 是发往 worker 的消息。只有 Load/Save 两种，worker 在批处理
// 循环里用 type switch 分发，避免任何动态注册开销。
type command interface {
	isCommand()
}

type loadResult struct {
	entry Entry
	found bool
}

type loadCmd struct {
	name  string
	reply chan loadResult
}

type saveCmd struct {
	entry Entry
	reply chan struct{}
}

func (loadCmd) isCommand() {}
func (saveCmd) isCommand() {}

// Load 查询某个 crate 的缓存条目。内部存储错误会被 worker 吞掉并记日志，
// 对调用方表现为未命中；只有 store 已关闭或 ctx 取消才返回 error。
func (s *Store) Load(ctx context.Context, name string) (Entry, bool, error) {
	cmd := loadCmd{name: name, reply: make(chan loadResult, 1)}

	select {
	case s.cmds <- cmd:
	case <-s.stop:
		return Entry{}, false, ErrStoreClosed
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res.entry, res.found, nil
	case <-s.done:
		// worker 可能在退出前已经应答；先收尾检查一次。
		select {
		case res := <-cmd.reply:
			return res.entry, res.found, nil
		default:
			return Entry{}, false, ErrStoreClosed
		}
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	}
}

// Save 以 upsert 语义写入条目。缓存写入是 best effort：存储层错误由
// worker 记日志后按成功应答，绝不让缓存问题拖垮主流程。命令一旦入队
// 就一定会被执行，即使调用方随后被取消。
func (s *Store) Save(ctx context.Context, entry Entry) error {
	cmd := saveCmd{entry: entry, reply: make(chan struct{}, 1)}

	select {
	case s.cmds <- cmd:
	case <-s.stop:
		return ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cmd.reply:
		return nil
	case <-s.done:
		select {
		case <-cmd.reply:
			return nil
		default:
			return ErrStoreClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
