package consumer

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"
)

// MergeConsumerService 合并消费者服务包装
// 实现 service.Service 接口，接入 go-zero 的 ServiceGroup 生命周期管理
type MergeConsumerService struct {
	consumer Consumer
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewMergeConsumerService 创建合并消费者服务
func NewMergeConsumerService(consumer Consumer) *MergeConsumerService {
	ctx, cancel := context.WithCancel(context.Background())
	return &MergeConsumerService{
		consumer: consumer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动服务，阻塞直到收到停止信号
func (s *MergeConsumerService) Start() {
	logx.Infof("[MergeConsumerService] 启动合并消费者: %s", s.consumer.Name())

	if err := s.consumer.Start(s.ctx); err != nil {
		logx.Errorf("[MergeConsumerService] 合并消费者启动失败: %v", err)
		return
	}

	logx.Info("[MergeConsumerService] 合并消费者启动成功")

	<-s.ctx.Done()
	logx.Info("[MergeConsumerService] 收到停止信号")
}

// Stop 停止服务
func (s *MergeConsumerService) Stop() {
	logx.Info("[MergeConsumerService] 正在停止合并消费者...")

	s.cancel()

	if err := s.consumer.Stop(); err != nil {
		logx.Errorf("[MergeConsumerService] 合并消费者停止失败: %v", err)
	} else {
		logx.Info("[MergeConsumerService] 合并消费者已停止")
	}
}
