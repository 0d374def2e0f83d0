// Copyright 2024-2026 Aiku AI

package mmconn

import (
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
)

const defaultIndexSize = 5000

// postIndex keeps the most recently seen posts so timestamps can be mapped
// back to post ids and edits can report what the post looked like before.
// The oldest entries are evicted first.
type postIndex struct {
	mu       sync.Mutex
	capacity int
	order    []string
	byID     map[string]*model.Post
	byTS     map[tsKey]string
}

type tsKey struct {
	channelID string
	ts        string
}

func newPostIndex(capacity int) *postIndex {
	if capacity <= 0 {
		capacity = defaultIndexSize
	}
	return &postIndex{
		capacity: capacity,
		byID:     make(map[string]*model.Post),
		byTS:     make(map[tsKey]string),
	}
}

// put stores a snapshot of post, replacing any earlier one.
func (x *postIndex) put(post *model.Post) {
	if post == nil || post.Id == "" {
		return
	}
	snapshot := post.Clone()
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.byID[post.Id]; !ok {
		x.order = append(x.order, post.Id)
	}
	x.byID[post.Id] = snapshot
	x.byTS[tsKey{post.ChannelId, tsFromMillis(post.CreateAt)}] = post.Id
	for len(x.order) > x.capacity {
		x.evictLocked(x.order[0])
	}
}

func (x *postIndex) get(postID string) (*model.Post, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	post, ok := x.byID[postID]
	return post, ok
}

func (x *postIndex) lookupTS(channelID, ts string) (*model.Post, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	id, ok := x.byTS[tsKey{channelID, ts}]
	if !ok {
		return nil, false
	}
	post, ok := x.byID[id]
	return post, ok
}

func (x *postIndex) remove(postID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.evictLocked(postID)
}

func (x *postIndex) evictLocked(postID string) {
	post, ok := x.byID[postID]
	if !ok {
		return
	}
	delete(x.byID, postID)
	key := tsKey{post.ChannelId, tsFromMillis(post.CreateAt)}
	if x.byTS[key] == postID {
		delete(x.byTS, key)
	}
	for i, id := range x.order {
		if id == postID {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
}

func (x *postIndex) len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.byID)
}
