// services/archive_service.go
package services

import (
	"github.com/wfunc/rpserver/logger"
	"github.com/wfunc/rpserver/models"
	"github.com/wfunc/rpserver/persistence"
)

// archiveJob 一次待写入的归档任务
type archiveJob struct {
	player  *models.Player
	chat    *models.ChatMessage
	session string
}

// ArchiveService 把下线快照和聊天记录异步写入归档库。
// 所有写入经过缓冲队列由单个worker执行，事件路径上只有一次入队，
// 队列满时直接丢弃（归档是尽力而为的旁路，不是中继语义的一部分）。
type ArchiveService struct {
	db   persistence.Database
	jobs chan archiveJob
	done chan struct{}
}

func NewArchiveService(db persistence.Database) *ArchiveService {
	s := &ArchiveService{
		db:   db,
		jobs: make(chan archiveJob, 1024),
		done: make(chan struct{}),
	}
	go s.worker()
	return s
}

// ArchivePlayer 入队玩家下线快照
func (s *ArchiveService) ArchivePlayer(player models.Player) {
	s.enqueue(archiveJob{player: &player})
}

// ArchiveChat 入队聊天记录
func (s *ArchiveService) ArchiveChat(sessionID string, message models.ChatMessage) {
	s.enqueue(archiveJob{chat: &message, session: sessionID})
}

func (s *ArchiveService) enqueue(job archiveJob) {
	select {
	case s.jobs <- job:
	default:
		logger.Log.Warn("Archive queue full, dropping archive job")
	}
}

func (s *ArchiveService) worker() {
	for {
		select {
		case <-s.done:
			return
		case job := <-s.jobs:
			s.write(job)
		}
	}
}

func (s *ArchiveService) write(job archiveJob) {
	var err error
	switch {
	case job.player != nil:
		err = s.db.SavePlayerArchive(*job.player)
	case job.chat != nil:
		err = s.db.SaveChatLog(job.session, *job.chat)
	}
	if err != nil {
		logger.Log.Errorf("Archive write failed: %v", err)
	}
}

// Stats 归档库汇总
func (s *ArchiveService) Stats() (persistence.ArchiveStats, error) {
	return s.db.Stats()
}

// RecentChat 最近的聊天记录
func (s *ArchiveService) RecentChat(limit int) ([]models.GormChatLog, error) {
	return s.db.RecentChat(limit)
}

// Close 停止worker。队列里未写完的任务被放弃。
func (s *ArchiveService) Close() {
	close(s.done)
}
