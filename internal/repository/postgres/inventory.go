package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidar/tenant-purge/internal/domain"
)

// InventoryRepository реализует repository.InventoryRepository для PostgreSQL
type InventoryRepository struct {
	db *pgxpool.Pool
}

// NewInventoryRepository создает новый экземпляр InventoryRepository
func NewInventoryRepository(db *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// GetPrincipal получает принципала по ID
func (r *InventoryRepository) GetPrincipal(ctx context.Context, principalID string) (*domain.Principal, error) {
	query := `
		SELECT principal_id, name, email, is_active, is_operator, created_at
		FROM principals
		WHERE principal_id = $1
	`

	var p domain.Principal
	err := r.db.QueryRow(ctx, query, principalID).Scan(
		&p.PrincipalID,
		&p.Name,
		&p.Email,
		&p.IsActive,
		&p.IsOperator,
		&p.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPrincipalNotFound
		}
		return nil, err
	}

	return &p, nil
}

// ListTeams возвращает все команды принципала со всеми участниками
func (r *InventoryRepository) ListTeams(ctx context.Context, principalID string) ([]*domain.Team, error) {
	query := `
		SELECT t.team_id, t.team_name, m.principal_id, p.name, m.role, p.is_active, m.joined_at
		FROM teams t
		INNER JOIN team_members m ON m.team_id = t.team_id
		INNER JOIN principals p ON p.principal_id = m.principal_id
		WHERE t.team_id IN (SELECT team_id FROM team_members WHERE principal_id = $1)
		ORDER BY t.team_id, m.joined_at, m.principal_id
	`

	rows, err := r.db.Query(ctx, query, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []*domain.Team
	var current *domain.Team
	for rows.Next() {
		var teamID, teamName string
		var member domain.TeamMember
		if err := rows.Scan(
			&teamID,
			&teamName,
			&member.PrincipalID,
			&member.Name,
			&member.Role,
			&member.IsActive,
			&member.JoinedAt,
		); err != nil {
			return nil, err
		}

		// Rows are ordered by team, so a new team id starts a new group
		if current == nil || current.TeamID != teamID {
			current = &domain.Team{TeamID: teamID, TeamName: teamName}
			teams = append(teams, current)
		}
		current.Members = append(current.Members, member)
	}

	return teams, rows.Err()
}

// ListHosts возвращает хосты указанных команд
func (r *InventoryRepository) ListHosts(ctx context.Context, teamIDs []string) ([]domain.Host, error) {
	if len(teamIDs) == 0 {
		return []domain.Host{}, nil
	}

	query := `
		SELECT host_id, team_id, host_name, address
		FROM hosts
		WHERE team_id = ANY($1)
		ORDER BY host_id
	`

	rows, err := r.db.Query(ctx, query, teamIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hosts := []domain.Host{}
	for rows.Next() {
		var h domain.Host
		if err := rows.Scan(&h.HostID, &h.TeamID, &h.HostName, &h.Address); err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}

	return hosts, rows.Err()
}

// ListResources возвращает ресурсы указанных команд
func (r *InventoryRepository) ListResources(ctx context.Context, teamIDs []string) ([]domain.Resource, error) {
	if len(teamIDs) == 0 {
		return []domain.Resource{}, nil
	}

	query := `
		SELECT resource_id, host_id, team_id, kind, resource_name
		FROM resources
		WHERE team_id = ANY($1)
		ORDER BY resource_id
	`

	rows, err := r.db.Query(ctx, query, teamIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := []domain.Resource{}
	for rows.Next() {
		var res domain.Resource
		if err := rows.Scan(&res.ResourceID, &res.HostID, &res.TeamID, &res.Kind, &res.ResourceName); err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}

	return resources, rows.Err()
}

// ListResourcesOnHosts возвращает все ресурсы на указанных хостах
func (r *InventoryRepository) ListResourcesOnHosts(ctx context.Context, hostIDs []string) ([]domain.Resource, error) {
	if len(hostIDs) == 0 {
		return []domain.Resource{}, nil
	}

	query := `
		SELECT resource_id, host_id, team_id, kind, resource_name
		FROM resources
		WHERE host_id = ANY($1)
		ORDER BY host_id, resource_id
	`

	rows, err := r.db.Query(ctx, query, hostIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := []domain.Resource{}
	for rows.Next() {
		var res domain.Resource
		if err := rows.Scan(&res.ResourceID, &res.HostID, &res.TeamID, &res.Kind, &res.ResourceName); err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}

	return resources, rows.Err()
}

// CountResources возвращает количество ресурсов команды
func (r *InventoryRepository) CountResources(ctx context.Context, teamID string) (int, error) {
	query := `SELECT COUNT(*) FROM resources WHERE team_id = $1`

	var count int
	if err := r.db.QueryRow(ctx, query, teamID).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// ListSubscriptions возвращает подписки указанных команд
func (r *InventoryRepository) ListSubscriptions(ctx context.Context, teamIDs []string) ([]domain.Subscription, error) {
	if len(teamIDs) == 0 {
		return []domain.Subscription{}, nil
	}

	query := `
		SELECT subscription_id, team_id, provider_subscription_id, status
		FROM subscriptions
		WHERE team_id = ANY($1)
		ORDER BY subscription_id
	`

	rows, err := r.db.Query(ctx, query, teamIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		var s domain.Subscription
		if err := rows.Scan(&s.SubscriptionID, &s.TeamID, &s.ProviderID, &s.Status); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}

	return subs, rows.Err()
}
