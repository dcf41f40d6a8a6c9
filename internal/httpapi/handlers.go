package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/nvidal/pairtask/internal/notification"
	"github.com/nvidal/pairtask/internal/pushsubscription"
	"github.com/nvidal/pairtask/internal/session"
	"github.com/nvidal/pairtask/internal/store"
	"github.com/nvidal/pairtask/internal/task"
	"github.com/nvidal/pairtask/internal/tasktype"
	"github.com/nvidal/pairtask/pkg/cerr"
)

type loginRequest struct {
	ParticipantID string `json:"participantId"`
	AccessKey     string `json:"accessKey"`
}

type loginResponse struct {
	Token       string          `json:"token"`
	Participant participantBody `json:"participant"`
}

type participantBody struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	sess, err := s.manager.Login(ctx, req.ParticipantID, req.AccessKey)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	token, err := newToken()
	if err != nil {
		sess.Logout()
		cerr.SetNewJSONError(ctx, cerr.Internal, "failed to issue session token", err)
		return
	}
	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()

	owner := sess.Owner()
	cerr.SetJSONResponse(ctx, loginResponse{
		Token: token,
		Participant: participantBody{
			ID:    owner.ID,
			Name:  owner.Name,
			Email: owner.Email,
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := bearerToken(r)
	s.mu.Lock()
	sess, ok := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()
	if ok {
		sess.Logout()
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

type pushKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (s *Server) handlePushKey(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), pushKeyResponse{PublicKey: s.env.VAPIDPublicKey})
}

type taskBody struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        string     `json:"type"`
	TypeName    string     `json:"typeName"`
	TypeIcon    string     `json:"typeIcon"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	ParentID    string     `json:"parentId,omitempty"`
	AssignedTo  string     `json:"assignedTo"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Subtasks    []taskBody `json:"subtasks,omitempty"`
}

func taskBodyFromNode(n *store.Node) taskBody {
	body := taskBodyFromTask(n.Task)
	if n.Type != nil {
		body.TypeName = n.Type.Name
		body.TypeIcon = n.Type.Icon
	}
	for _, sub := range n.Subtasks {
		body.Subtasks = append(body.Subtasks, taskBodyFromNode(sub))
	}
	return body
}

func taskBodyFromTask(t *task.Task) taskBody {
	return taskBody{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Type:        t.Type,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		DueDate:     t.DueDate,
		ParentID:    t.ParentID,
		AssignedTo:  t.AssignedTo,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

type listTasksResponse struct {
	Tasks []taskBody `json:"tasks"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	q := r.URL.Query()
	filter := store.Filter{
		Status:     task.Status(q.Get("status")),
		Type:       q.Get("type"),
		Priority:   task.Priority(q.Get("priority")),
		AssignedTo: q.Get("assignedTo"),
	}
	nodes := sess.Store().Query(filter)
	resp := listTasksResponse{Tasks: make([]taskBody, 0, len(nodes))}
	for _, n := range nodes {
		resp.Tasks = append(resp.Tasks, taskBodyFromNode(n))
	}
	cerr.SetJSONResponse(ctx, resp)
}

type addTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	ParentID    string     `json:"parentId"`
	AssignedTo  string     `json:"assignedTo"`
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	var req addTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	t, err := sess.AddTask(ctx, session.AddTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Priority:    task.Priority(req.Priority),
		DueDate:     req.DueDate,
		ParentID:    req.ParentID,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskBodyFromTask(t))
}

type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Type        *string    `json:"type"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	ClearDue    bool       `json:"clearDueDate"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	in := session.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		DueDate:     req.DueDate,
		ClearDue:    req.ClearDue,
	}
	if req.Priority != nil {
		p := task.Priority(*req.Priority)
		in.Priority = &p
	}
	t, err := sess.UpdateTask(ctx, chi.URLParam(r, "id"), in)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskBodyFromTask(t))
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	t, err := sess.ToggleComplete(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, taskBodyFromTask(t))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	if err := sess.DeleteTask(ctx, chi.URLParam(r, "id")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

type typeBody struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Color  string `json:"color,omitempty"`
	Custom bool   `json:"custom"`
	InUse  int    `json:"inUse"`
}

func typeBodyFrom(t *tasktype.TaskType, inUse int) typeBody {
	return typeBody{
		ID:     t.ID,
		Name:   t.Name,
		Icon:   t.Icon,
		Color:  t.Color,
		Custom: t.Custom,
		InUse:  inUse,
	}
}

type listTypesResponse struct {
	Types []typeBody `json:"types"`
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	st := sess.Store()
	types := st.Types()
	resp := listTypesResponse{Types: make([]typeBody, 0, len(types))}
	for _, t := range types {
		resp.Types = append(resp.Types, typeBodyFrom(t, st.CountByType(t.ID)))
	}
	cerr.SetJSONResponse(ctx, resp)
}

type createTypeRequest struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

func (s *Server) handleCreateType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	var req createTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	t, err := sess.CreateType(ctx, session.CreateTypeInput{
		Name:  req.Name,
		Icon:  req.Icon,
		Color: req.Color,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, typeBodyFrom(t, 0))
}

func (s *Server) handleDeleteType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	if err := sess.DeleteType(ctx, chi.URLParam(r, "id")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

type notificationBody struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	TypeID     string    `json:"typeId,omitempty"`
	TypeName   string    `json:"typeName,omitempty"`
	TasksCount int       `json:"tasksCount,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Read       bool      `json:"read"`
}

func notificationBodyFrom(n *notification.Notification) notificationBody {
	return notificationBody{
		ID:         n.ID,
		Kind:       string(n.Kind),
		Message:    n.Message,
		TypeID:     n.TypeID,
		TypeName:   n.TypeName,
		TasksCount: n.TasksCount,
		CreatedAt:  n.CreatedAt,
		Read:       n.Read,
	}
}

type listNotificationsResponse struct {
	Notifications []notificationBody `json:"notifications"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	notifs, err := sess.Notifications(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp := listNotificationsResponse{Notifications: make([]notificationBody, 0, len(notifs))}
	for _, n := range notifs {
		resp.Notifications = append(resp.Notifications, notificationBodyFrom(n))
	}
	cerr.SetJSONResponse(ctx, resp)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	if err := sess.MarkNotificationRead(ctx, chi.URLParam(r, "id")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

type registerSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type registerSubscriptionResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleRegisterPushSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	var req registerSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint and keys are required", nil)
		return
	}
	sub := &pushsubscription.Subscription{
		ID:          ulid.Make().String(),
		Participant: sess.Owner().ID,
		Endpoint:    req.Endpoint,
		P256dhKey:   req.Keys.P256dh,
		AuthKey:     req.Keys.Auth,
		CreatedAt:   time.Now(),
	}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, registerSubscriptionResponse{ID: sub.ID})
}

type unregisterSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleUnregisterPushSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)
	var req unregisterSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if err := s.subRepo.DeleteByEndpoint(ctx, sess.Owner().ID, req.Endpoint); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}
