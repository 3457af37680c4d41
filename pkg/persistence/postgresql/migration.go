package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions, stored whole as JSONB with the columns the scheduler filters on
			CREATE TABLE stride_workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT true,
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_stride_workflows_trigger_type ON stride_workflows(trigger_type);
			CREATE INDEX idx_stride_workflows_created_at ON stride_workflows(created_at);

			-- User profiles workflows run for
			CREATE TABLE stride_users (
				id VARCHAR(255) PRIMARY KEY,
				email VARCHAR(255) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL DEFAULT '',
				subscription_tier VARCHAR(50) NOT NULL DEFAULT 'free',
				joined_at TIMESTAMP WITH TIME ZONE,
				last_active_at TIMESTAMP WITH TIME ZONE,
				properties JSONB NOT NULL DEFAULT '{}'
			);

			CREATE INDEX idx_stride_users_subscription_tier ON stride_users(subscription_tier);
		`,
		2: `
			-- Records written by database actions
			CREATE TABLE stride_action_records (
				id VARCHAR(255) PRIMARY KEY,
				table_name VARCHAR(255) NOT NULL,
				action VARCHAR(50) NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				workflow_id VARCHAR(255),
				user_id VARCHAR(255),
				written_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_stride_action_records_table ON stride_action_records(table_name);
			CREATE INDEX idx_stride_action_records_user ON stride_action_records(user_id);
		`,
	}
}
